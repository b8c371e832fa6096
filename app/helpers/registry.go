// Package helpers holds feed and article fetchers for sites that need more
// than a plain HTTP download. Feeds name them with feed_helper or
// page_helper and pass options through helper_args.
package helpers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/lysyi3m/rss-offline/app/fetch"
)

// FeedFetcher produces a whole feed directory by itself. It returns the
// files it wrote, relative to outDir.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, outDir string) ([]string, error)
}

// ArticleFetcher returns the HTML of one story.
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, url string) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, rawURL, referrer string) (*fetch.Document, error)
}

type Args map[string]string

type (
	FeedFactory    func(args Args) (FeedFetcher, error)
	ArticleFactory func(args Args, downloader Downloader) (ArticleFetcher, error)
)

type Registry struct {
	feeds    map[string]FeedFactory
	articles map[string]ArticleFactory
}

// NewRegistry returns a registry with the built-in helpers registered.
func NewRegistry() *Registry {
	r := &Registry{
		feeds:    make(map[string]FeedFactory),
		articles: make(map[string]ArticleFactory),
	}
	r.RegisterFeed("copyfeed", NewCopyFeed)
	r.RegisterArticle("readability", NewReadability)
	return r
}

func (r *Registry) RegisterFeed(name string, factory FeedFactory) {
	r.feeds[name] = factory
}

func (r *Registry) RegisterArticle(name string, factory ArticleFactory) {
	r.articles[name] = factory
}

func (r *Registry) FeedHelper(name string, args Args) (FeedFetcher, error) {
	factory, ok := r.feeds[name]
	if !ok {
		return nil, fmt.Errorf("unknown feed helper %q (available: %s)", name, strings.Join(keys(r.feeds), ", "))
	}
	return factory(args)
}

func (r *Registry) ArticleHelper(name string, args Args, downloader Downloader) (ArticleFetcher, error) {
	factory, ok := r.articles[name]
	if !ok {
		return nil, fmt.Errorf("unknown page helper %q (available: %s)", name, strings.Join(keys(r.articles), ", "))
	}
	return factory(args, downloader)
}

// ExpandArgs substitutes $f with the feed's output directory and $d with
// the day directory. A backslash-escaped \$f or \$d is left alone.
func ExpandArgs(args map[string]string, feedDir, dayDir string) Args {
	expanded := make(Args, len(args))
	for k, v := range args {
		if !strings.Contains(v, `\$f`) {
			v = strings.ReplaceAll(v, "$f", feedDir)
		}
		if !strings.Contains(v, `\$d`) {
			v = strings.ReplaceAll(v, "$d", dayDir)
		}
		expanded[k] = v
	}
	return expanded
}

func keys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
