package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-offline/app/cfg"
	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/msglog"
	"github.com/lysyi3m/rss-offline/app/seen"
	"github.com/lysyi3m/rss-offline/app/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration from environment variables and command-line flags
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if appConfig == nil {
		// Help was shown
		return 0
	}

	logClose, err := setupLogging(appConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logClose()

	slog.Info("Starting rss-offline", "version", appConfig.Version)

	// Load feed configurations
	configCache := feed.NewConfigCache(appConfig.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load feed configurations", "dir", appConfig.FeedsDir, "error", err)
		return 1
	}
	slog.Info("Feed configurations loaded", "dir", appConfig.FeedsDir, "count", configCache.GetConfigCount())

	if appConfig.ShowSites {
		showSites(os.Stdout, configCache)
		return 0
	}

	// Without dedup state every old story would come back
	cache, err := tasks.OpenCache(appConfig.CacheFile, appConfig.NoCache, appConfig.SaveDays)
	if err != nil {
		var readErr *seen.ReadError
		if errors.As(err, &readErr) {
			slog.Error("Can't read the seen cache; rerun with --nocache to fetch without it", "path", readErr.Path, "error", readErr.Err)
		} else {
			slog.Error("Failed to open seen cache", "error", err)
		}
		return 1
	}

	// Interrupts ask what to skip unless running unattended
	interrupter := tasks.NewInterrupter(os.Stdin, os.Stderr, !appConfig.Yes)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go interrupter.Watch(ctx, sigChan)

	messages := msglog.New()
	runner := tasks.NewRunner(configCache, cache, messages, interrupter, tasks.Options{
		OutputDir: appConfig.OutputDir,
		UserAgent: appConfig.UserAgent,
		SaveDays:  appConfig.SaveDays,
		SaveCache: !appConfig.NoCache,
		Now:       time.Now(),
	})

	if err := runner.Run(ctx, appConfig.Feeds); err != nil {
		slog.Error("Run failed", "error", err)
		return 1
	}

	fmt.Fprint(os.Stderr, messages.Summary())
	if len(messages.Errors()) > 0 {
		return 1
	}
	return 0
}

// setupLogging installs the default slog handler, teeing to --log-file
// when given.
func setupLogging(c *cfg.Cfg) (func(), error) {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}

func showSites(w io.Writer, configCache *feed.ConfigCache) {
	for _, feedConfig := range configCache.GetEnabledConfigs() {
		source := feedConfig.URL
		if source == "" {
			source = "helper " + feedConfig.Settings.FeedHelper
		}
		fmt.Fprintf(w, "%-24s %s\n", feedConfig.Name, source)
	}
}
