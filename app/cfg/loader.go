package cfg

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Locations
	FeedsDir  string `long:"feeds-dir" env:"FEEDS_DIR" default:"~/.config/rss-offline/feeds" description:"Directory containing feed configuration files"`
	OutputDir string `long:"output-dir" env:"OUTPUT_DIR" default:"~/feeds" description:"Directory the day directories are written to"`
	CacheFile string `long:"cache-file" env:"CACHE_FILE" default:"~/.cache/rss-offline/seen" description:"File recording the items already seen"`

	// Run behaviour
	NoCache   bool `long:"nocache" description:"Don't read or write the seen cache"`
	SaveDays  int  `long:"save-days" env:"SAVE_DAYS" default:"7" description:"Days to keep old output and cache backups"`
	ShowSites bool `long:"show-sites" description:"List the configured feeds and exit"`
	Yes       bool `short:"y" long:"yes" description:"Don't ask anything; an interrupt ends the run"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"rss-offline/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" description:"Timezone for day directories (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFile   string `long:"log-file" env:"LOG_FILE" description:"Also write the log to this file"`

	Args struct {
		Feeds []string `positional-arg-name:"feed" description:"Feeds to fetch (default: all enabled feeds)"`
	} `positional-args:"yes"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help
// was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.SaveDays < 0 {
		return nil, fmt.Errorf("save-days must be non-negative, got %d", raw.SaveDays)
	}

	cfg := &Cfg{
		FeedsDir:  expandHome(raw.FeedsDir),
		OutputDir: expandHome(raw.OutputDir),
		CacheFile: expandHome(raw.CacheFile),
		NoCache:   raw.NoCache,
		SaveDays:  raw.SaveDays,
		ShowSites: raw.ShowSites,
		Yes:       raw.Yes,
		Feeds:     raw.Args.Feeds,
		UserAgent: raw.UserAgent,
		Timezone:  raw.Timezone,
		Debug:     raw.Debug,
		LogFile:   expandHome(raw.LogFile),
		Version:   GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
