package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run reduces a page to its main article. pageURL may be empty.
func (e *ContentExtractor) Run(data, pageURL string) (string, error) {
	if strings.TrimSpace(data) == "" {
		return "", fmt.Errorf("HTML data is empty")
	}

	var u *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err == nil {
			u = parsed
		}
	}

	article, err := readability.FromReader(strings.NewReader(data), u)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(article.Content))

	return article.Content, nil
}
