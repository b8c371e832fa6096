package helpers

import (
	"context"
	"fmt"

	"github.com/lysyi3m/rss-offline/app/feed"
)

// Readability downloads a story and keeps only the main article.
type Readability struct {
	downloader Downloader
	extractor  *feed.ContentExtractor
}

func NewReadability(args Args, downloader Downloader) (ArticleFetcher, error) {
	if downloader == nil {
		return nil, fmt.Errorf("readability helper needs a downloader")
	}
	return &Readability{
		downloader: downloader,
		extractor:  feed.NewContentExtractor(),
	}, nil
}

func (r *Readability) FetchArticle(ctx context.Context, url string) (string, error) {
	doc, err := r.downloader.Download(ctx, url, "")
	if err != nil {
		return "", err
	}

	content, err := r.extractor.Run(doc.Text, doc.URL)
	if err != nil {
		return "", fmt.Errorf("failed to extract article from %s: %w", url, err)
	}
	return content, nil
}
