package tasks

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/rss-offline/app/convert"
	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/fetch"
	"github.com/lysyi3m/rss-offline/app/helpers"
	"github.com/lysyi3m/rss-offline/app/msglog"
	"github.com/lysyi3m/rss-offline/app/seen"
)

var _ RunnerInterface = (*Runner)(nil)

type Options struct {
	OutputDir string
	UserAgent string
	SaveDays  int
	// SaveCache is false for runs that were told not to use the cache.
	SaveCache bool
	Now       time.Time
}

type Runner struct {
	configCache *feed.ConfigCache
	cache       *seen.Cache
	registry    *helpers.Registry
	parser      *feed.Parser
	filterer    *feed.Filterer
	converter   *convert.Converter
	log         *msglog.Log
	interrupt   *Interrupter
	opts        Options
	runID       string
}

func NewRunner(configCache *feed.ConfigCache, cache *seen.Cache, log *msglog.Log, interrupt *Interrupter, opts Options) *Runner {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	return &Runner{
		configCache: configCache,
		cache:       cache,
		registry:    helpers.NewRegistry(),
		parser:      feed.NewParser(),
		filterer:    feed.NewFilterer(),
		converter:   convert.New(opts.OutputDir, opts.Now),
		log:         log,
		interrupt:   interrupt,
		opts:        opts,
		runID:       uuid.NewString(),
	}
}

// OpenCache loads the seen cache. With nocache the run gets an empty cache
// that is never written back.
func OpenCache(path string, nocache bool, saveDays int) (*seen.Cache, error) {
	retention := time.Duration(saveDays) * 24 * time.Hour
	if nocache {
		return seen.New("", retention), nil
	}
	return seen.Load(path, retention)
}

// DayDir is where a run started at now writes its feeds.
func DayDir(outputDir string, now time.Time) string {
	return filepath.Join(outputDir, now.Format("01-02-Mon"))
}

// Run processes the named feeds, or every enabled feed when none are named.
func (r *Runner) Run(ctx context.Context, feedNames []string) error {
	ctx, done := r.interrupt.Run(ctx)
	defer done()

	dayDir := DayDir(r.opts.OutputDir, r.opts.Now)

	removed, err := CleanUp(r.opts.OutputDir, r.opts.SaveDays, r.opts.Now)
	if err != nil {
		r.log.Warn("Couldn't clean up %s: %v", r.opts.OutputDir, err)
	}
	for _, path := range removed {
		slog.Debug("Removed old output", "path", path)
	}

	if dropped := r.cache.Prune(r.configCache.FeedURLs()); len(dropped) > 0 {
		slog.Debug("Dropped cache entries for unconfigured feeds", "count", len(dropped))
	}

	configs := r.selectConfigs(feedNames)
	if len(configs) == 0 {
		r.log.Msg("No feeds to fetch")
		return nil
	}

	var results []*FeedResult
	for _, feedConfig := range configs {
		if ctx.Err() != nil {
			r.log.Msg("Run stopped before %s: %v", feedConfig.Name, context.Cause(ctx))
			break
		}

		fc, err := feed.NewContext(feedConfig, feed.Defaults{UserAgent: r.opts.UserAgent, SaveDays: r.opts.SaveDays})
		if err != nil {
			r.log.Err("Bad configuration for %s: %v", feedConfig.Name, err)
			continue
		}

		feedCtx, feedDone := r.interrupt.Feed(ctx)
		task := NewProcessFeedTask(fc, r.cache, r.registry, r.parser, r.filterer, r.log, r.interrupt, dayDir, r.opts.Now)
		r.executeTask(feedCtx, task)
		feedDone()

		if r.opts.SaveCache {
			if err := r.cache.Save(); err != nil {
				r.log.Err("Couldn't save cache: %v", err)
			}
		}

		if task.Result == nil || task.Result.IndexFile == "" {
			continue
		}
		results = append(results, task.Result)

		if len(fc.Settings.Formats) > 0 && ctx.Err() == nil {
			r.executeTask(ctx, NewConvertFeedTask(fc.Name, r.converter, task.Result.IndexFile, fc.Settings.Formats, r.log))
		}
	}

	if len(results) > 0 {
		if err := WriteManifest(dayDir, r.runID, results); err != nil {
			r.log.Err("Couldn't write MANIFEST: %v", err)
		}
	}

	return nil
}

func (r *Runner) selectConfigs(feedNames []string) []*feed.Config {
	if len(feedNames) == 0 {
		return r.configCache.GetEnabledConfigs()
	}

	var configs []*feed.Config
	for _, name := range feedNames {
		feedConfig, err := r.configCache.GetConfig(name)
		if err != nil {
			r.log.Err("Unknown feed %s: %v", name, err)
			continue
		}
		configs = append(configs, feedConfig)
	}
	return configs
}

func (r *Runner) executeTask(ctx context.Context, task TaskInterface) {
	task.Start()

	err := task.Execute(ctx)
	if err == nil {
		return
	}

	var cookieErr *fetch.CookieSourceError
	switch {
	case errors.As(err, &cookieErr):
		r.log.Err("Skipping %s: can't use cookie file %s: %v", task.GetFeedName(), cookieErr.Path, cookieErr.Err)
	case errors.Is(err, context.Canceled):
		r.log.Msg("%s interrupted: %v", task.GetFeedName(), context.Cause(ctx))
	default:
		r.log.Err("%s failed: %v", task.GetFeedName(), err)
	}

	slog.Debug("Task failed", "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "duration", task.GetDuration(), "error", err)
}
