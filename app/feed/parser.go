package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, p.normalizeItem(item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	link := item.Link
	if link == "" && len(item.Links) > 0 {
		link = item.Links[0]
	}

	normalized := Item{
		ID:         EncodeID(cmp.Or(item.GUID, link)),
		Title:      strings.TrimSpace(item.Title),
		Link:       strings.TrimSpace(link),
		Content:    cmp.Or(item.Content, item.Description),
		Categories: item.Categories,
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed
	}

	normalized.Author = p.extractAuthor(item)

	return normalized
}

// EncodeID makes an identifier safe for the space separated cache format.
func EncodeID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), " ", "+")
}

// SplitAnchor separates a trailing named anchor from an item id.
func SplitAnchor(id string) (string, string) {
	if i := strings.LastIndex(id, "#"); i >= 0 {
		return id[:i], id[i:]
	}
	return id, ""
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if authorStr := p.formatAuthor(author.Name, author.Email); authorStr != "" {
					authors = append(authors, authorStr)
				}
			}
		}
	} else if item.Author != nil {
		if authorStr := p.formatAuthor(item.Author.Name, item.Author.Email); authorStr != "" {
			authors = append(authors, authorStr)
		}
	}

	return strings.Join(authors, ", ")
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" {
		return name
	}
	return email
}
