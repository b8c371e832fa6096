package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/rss-offline/app/cfg"
	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/fetch"
	"github.com/lysyi3m/rss-offline/app/helpers"
	"github.com/lysyi3m/rss-offline/app/images"
	"github.com/lysyi3m/rss-offline/app/msglog"
	"github.com/lysyi3m/rss-offline/app/normalize"
	"github.com/lysyi3m/rss-offline/app/pagination"
	"github.com/lysyi3m/rss-offline/app/seen"
)

// FeedResult describes what a feed run left on disk.
type FeedResult struct {
	Dir       string
	IndexFile string // empty when nothing was written
	Stories   int
	TimedOut  bool
}

type ProcessFeedTask struct {
	Task
	fc        *feed.Context
	cache     *seen.Cache
	registry  *helpers.Registry
	parser    *feed.Parser
	filterer  *feed.Filterer
	log       *msglog.Log
	interrupt *Interrupter
	dayDir    string
	now       time.Time

	Result *FeedResult
}

func NewProcessFeedTask(fc *feed.Context, cache *seen.Cache, registry *helpers.Registry, parser *feed.Parser, filterer *feed.Filterer, log *msglog.Log, interrupt *Interrupter, dayDir string, now time.Time) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:      NewTask(TaskTypeProcessFeed, fc.Name),
		fc:        fc,
		cache:     cache,
		registry:  registry,
		parser:    parser,
		filterer:  filterer,
		log:       log,
		interrupt: interrupt,
		dayDir:    dayDir,
		now:       now,
	}
}

// feedRun is the state of one pass over a feed's items.
type feedRun struct {
	dir        string
	fetcher    *fetch.Fetcher
	downloader pagination.Downloader
	gen        *feed.Generator
	newIDs     []string
	pages      map[string]int // base id -> page number
	titles     map[string]bool
	nextPage   int
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	feedDir := filepath.Join(t.dayDir, t.fc.Name)
	t.Result = &FeedResult{Dir: feedDir}

	if t.fc.Settings.FeedHelper != "" {
		return t.runFeedHelper(ctx, feedDir)
	}

	fetcher, err := fetch.New(t.fc)
	if err != nil {
		return err
	}

	doc, err := fetcher.Download(ctx, t.fc.URL, "")
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	metadata, items, err := t.parser.Run(doc.Raw)
	if err != nil {
		return err
	}
	items = t.filterer.Run(items, t.fc)

	if err := os.MkdirAll(feedDir, 0755); err != nil {
		return fmt.Errorf("failed to create feed directory: %w", err)
	}

	run := &feedRun{
		dir:        feedDir,
		fetcher:    fetcher,
		downloader: fetcher,
		gen:        feed.NewGenerator(t.fc.Name, cmp.Or(metadata.Title, t.fc.Name), t.fc.Settings.MinWidth, t.now),
		pages:      make(map[string]int),
		titles:     make(map[string]bool),
	}

	if name := t.fc.Settings.PageHelper; name != "" {
		args := helpers.ExpandArgs(t.fc.Settings.HelperArgs, feedDir, t.dayDir)
		article, err := t.registry.ArticleHelper(name, args, fetcher)
		if err != nil {
			os.RemoveAll(feedDir)
			return err
		}
		run.downloader = &articleDownloader{helper: article}
	}

	filtered := 0
	for i, item := range items {
		if item.IsFiltered {
			filtered++
			slog.Debug("Item filtered", "feed", t.FeedName, "title", item.Title, "reason", item.FilterReason)
			continue
		}

		storyCtx, done := t.interrupt.Story(ctx)
		err := t.processItem(storyCtx, run, item)
		cause := context.Cause(storyCtx)
		done()

		if err == nil {
			continue
		}
		if t.handleItemError(ctx, run, item, err, cause) {
			t.keepSeen(run, items[i+1:])
			break
		}
	}

	t.cache.Record(t.fc.URL, run.newIDs)

	t.Result.Stories = run.gen.Entries()
	if run.gen.Entries() == 0 {
		slog.Info("No new items", "feed", t.FeedName)
		if err := os.RemoveAll(feedDir); err != nil {
			slog.Warn("Failed to remove empty feed directory", "feed", t.FeedName, "error", err)
		}
	} else {
		indexFile := filepath.Join(feedDir, "index.html")
		if err := os.WriteFile(indexFile, []byte(run.gen.Run(downloadedBy(t.now))), 0644); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
		t.Result.IndexFile = indexFile
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"total", len(items),
		"filtered", filtered,
		"stories", t.Result.Stories)

	return nil
}

func (t *ProcessFeedTask) processItem(ctx context.Context, run *feedRun, item feed.Item) error {
	baseID, anchor := feed.SplitAnchor(item.ID)
	link := t.fc.SubstituteURL(item.Link)

	// Several entries can be anchors into one page.
	if n, ok := run.pages[baseID]; ok {
		run.newIDs = append(run.newIDs, item.ID)
		if anchor == "" {
			return nil
		}
		return t.addEntry(run, item, link, fmt.Sprintf("%d.html%s", n, anchor), nil)
	}

	run.newIDs = append(run.newIDs, item.ID)

	if !t.fc.Settings.AllowRepeats && t.cache.Contains(t.fc.URL, item.ID) {
		slog.Debug("Already seen", "feed", t.FeedName, "id", item.ID)
		return nil
	}
	if !t.fc.Settings.AllowDupTitles && item.Title != "" && run.titles[item.Title] {
		slog.Debug("Duplicate title", "feed", t.FeedName, "title", item.Title)
		return nil
	}
	run.titles[item.Title] = true

	if t.fc.Settings.Levels < 2 || link == "" {
		var record map[string]string
		if !t.fc.Settings.SkipImages {
			record = t.localizeContentImages(ctx, run, item, link)
		}
		return t.addEntry(run, item, link, link, record)
	}

	n := run.nextPage
	resolver := images.NewResolver(t.fc, run.fetcher, run.dir)
	controller := pagination.NewController(t.fc, run.downloader, normalize.New(t.fc, resolver))

	outcome, err := controller.Run(ctx, pagination.Request{
		URL:      link,
		Referrer: t.fc.URL,
		Title:    item.Title,
		Author:   item.Author,
		Footer:   pageFooter(n+1, link, t.now),
		Path:     filepath.Join(run.dir, fmt.Sprintf("%d.html", n)),
	})
	t.reportFailures(item, resolver.Failures())
	if err != nil {
		return err
	}
	t.reportFailures(item, outcome.Failures)
	slog.Debug("Story saved", "feed", t.FeedName, "page", n, "url", outcome.URL, "pages", outcome.Pages, "substituted", outcome.Substituted)

	run.nextPage++
	run.pages[baseID] = n
	return t.addEntry(run, item, link, fmt.Sprintf("%d.html%s", n, anchor), resolver.Record())
}

func (t *ProcessFeedTask) addEntry(run *feedRun, item feed.Item, link, href string, localImages map[string]string) error {
	content, err := normalize.IndexContent(t.fc, item.Content, link, localImages)
	if err != nil {
		slog.Warn("Failed to clean feed content", "feed", t.FeedName, "title", item.Title, "error", err)
		content = ""
	}

	run.gen.AddEntry(feed.IndexEntry{
		Title:   item.Title,
		Href:    href,
		Author:  item.Author,
		Content: content,
	})
	return nil
}

// localizeContentImages downloads the images of an item's feed content
// when there is no story page to carry them.
func (t *ProcessFeedTask) localizeContentImages(ctx context.Context, run *feedRun, item feed.Item, link string) map[string]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Content))
	if err != nil {
		return nil
	}

	resolver := images.NewResolver(t.fc, run.fetcher, run.dir)
	doc.Find("img").Each(func(i int, img *goquery.Selection) {
		resolver.Resolve(ctx, img, cmp.Or(link, t.fc.URL))
	})
	t.reportFailures(item, resolver.Failures())
	return resolver.Record()
}

// reportFailures puts the parts of a story that were given up on into the
// run summary.
func (t *ProcessFeedTask) reportFailures(item feed.Item, failures []string) {
	for _, failure := range failures {
		t.log.Msg("%s: %s: couldn't fetch %s", t.FeedName, item.Title, failure)
	}
}

// handleItemError logs a failed item and reports whether the rest of the
// feed should be abandoned.
func (t *ProcessFeedTask) handleItemError(feedCtx context.Context, run *feedRun, item feed.Item, err, cause error) bool {
	link := t.fc.SubstituteURL(item.Link)

	switch {
	case feedCtx.Err() != nil:
		t.dropID(run, item.ID)
		t.log.Msg("Stopped %s: %v", t.FeedName, context.Cause(feedCtx))
		return true

	case errors.Is(cause, ErrStorySkipped):
		t.dropID(run, item.ID)
		t.log.Msg("Skipped %s", link)
		return false

	case errors.Is(err, feed.ErrNoContent):
		t.log.Msg("No content for %s: %v", link, err)
		run.gen.AddNote(fmt.Sprintf("No content for <a href=\"%s\">%s</a>", html.EscapeString(link), html.EscapeString(item.Title)))
		return false

	case fetch.IsTimeout(err):
		t.dropID(run, item.ID)
		if t.fc.Settings.ContinueOnTimeout {
			t.log.Err("%s timed out, skipping story", link)
			return false
		}
		t.Result.TimedOut = true
		t.log.Err("%s timed out, skipping the rest of %s", link, t.FeedName)
		return true

	default:
		t.log.Err("Error on %s: %v", link, err)
		return false
	}
}

// keepSeen carries already seen ids of abandoned items into the new cache
// entry so they are not fetched again next time. Unseen ones stay unseen.
func (t *ProcessFeedTask) keepSeen(run *feedRun, rest []feed.Item) {
	for _, item := range rest {
		if t.cache.Contains(t.fc.URL, item.ID) {
			run.newIDs = append(run.newIDs, item.ID)
		}
	}
}

func (t *ProcessFeedTask) dropID(run *feedRun, id string) {
	if n := len(run.newIDs); n > 0 && run.newIDs[n-1] == id && !t.cache.Contains(t.fc.URL, id) {
		run.newIDs = run.newIDs[:n-1]
	}
}

func (t *ProcessFeedTask) runFeedHelper(ctx context.Context, feedDir string) error {
	args := helpers.ExpandArgs(t.fc.Settings.HelperArgs, feedDir, t.dayDir)
	helper, err := t.registry.FeedHelper(t.fc.Settings.FeedHelper, args)
	if err != nil {
		return err
	}

	files, err := helper.FetchFeed(ctx, feedDir)
	if err != nil {
		os.RemoveAll(feedDir)
		return fmt.Errorf("feed helper %s failed: %w", t.fc.Settings.FeedHelper, err)
	}

	indexFile := filepath.Join(feedDir, "index.html")
	if _, err := os.Stat(indexFile); err == nil {
		t.Result.IndexFile = indexFile
	}
	t.Result.Stories = len(files)

	slog.Info("Task completed",
		"type", string(t.Type),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"helper", t.fc.Settings.FeedHelper,
		"files", len(files))
	return nil
}

// articleDownloader lets a page helper stand in for the fetcher.
type articleDownloader struct {
	helper helpers.ArticleFetcher
}

func (d *articleDownloader) Download(ctx context.Context, rawURL, referrer string) (*fetch.Document, error) {
	text, err := d.helper.FetchArticle(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: page helper returned nothing for %s", feed.ErrNoContent, rawURL)
	}

	return &fetch.Document{
		URL:         rawURL,
		Prefix:      feed.RootURL(rawURL),
		ContentType: "text/html",
		Encoding:    "utf-8",
		Raw:         []byte(text),
		Text:        text,
	}, nil
}

func downloadedBy(now time.Time) string {
	return fmt.Sprintf("<p>\n<i>Downloaded by rss-offline %s on %s</i>\n", cfg.GetVersion(), now.Format("Mon Jan 2 15:04:05 2006"))
}

func pageFooter(next int, link string, now time.Time) string {
	footer := fmt.Sprintf("\n<hr>\n<center><a href=\"%d.html\">&gt;-%d-&gt;</a></center>\n", next, next)
	footer += downloadedBy(now)
	footer += fmt.Sprintf("<br>\n<a href=\"%s\">%s</a>\n", html.EscapeString(link), html.EscapeString(link))
	return footer
}
