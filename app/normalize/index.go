package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/lysyi3m/rss-offline/app/feed"
)

// IndexContent cleans an item's feed content for the index page. Images
// already downloaded for a story point at the local copy, any others are
// dropped so reading the index never touches the network.
func IndexContent(fc *feed.Context, content, baseHref string, localImages map[string]string) (string, error) {
	for _, pat := range fc.IndexSkipContentPats {
		content = pat.ReplaceAllString(content, "")
	}

	truncated := false
	if size := fc.Settings.RSSEntrySize; size > 0 && len(content) > size {
		for size > 0 && !utf8.RuneStart(content[size]) {
			size--
		}
		content = content[:size]
		truncated = true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse feed content: %w", err)
	}
	body := doc.Find("body").First()

	body.Find("script, style, noscript, iframe, form, object, embed").Remove()
	body.Find("[style]").Each(func(i int, s *goquery.Selection) {
		cleanStyle(s.Get(0))
	})
	body.Find("font").Each(func(i int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})

	body.Find("img").Each(func(i int, img *goquery.Selection) {
		if fc.Settings.SkipImages {
			img.Remove()
			return
		}
		src, _ := img.Attr("src")
		local, ok := localImages[feed.AbsoluteURL(src, baseHref)]
		if !ok {
			img.Remove()
			return
		}
		img.SetAttr("src", local)
		img.RemoveAttr("srcset")
	})

	body.Find("a").Each(func(i int, a *goquery.Selection) {
		if fc.Settings.SkipLinks {
			a.ReplaceWithSelection(a.Contents())
			return
		}
		if strings.TrimSpace(a.Text()) == "" && a.Find("img").Length() == 0 {
			a.Remove()
			return
		}
		if href, ok := a.Attr("href"); ok {
			a.SetAttr("href", feed.AbsoluteURL(href, baseHref))
		}
	})

	if truncated {
		appendEllipsis(body.Get(0))
	}

	return body.Html()
}

func appendEllipsis(n *html.Node) {
	var last *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
				last = c
			}
			find(c)
		}
	}
	find(n)

	if last != nil {
		last.Data = strings.TrimRight(last.Data, " \t\n") + " ..."
		return
	}
	n.AppendChild(textNode(" [...]"))
}
