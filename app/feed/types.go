package feed

import (
	"errors"
	"time"
)

// ErrNoContent marks a page or item that produced nothing worth saving.
var ErrNoContent = errors.New("no content")

// Feed processing types

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

type Item struct {
	ID          string
	Title       string
	Link        string
	Author      string
	Content     string // content if present, else summary
	PublishedAt *time.Time
	Categories  []string

	IsFiltered   bool
	FilterReason string
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []ConfigFilter `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled           *bool  `yaml:"enabled"`
	Levels            int    `yaml:"levels"`
	Timeout           int    `yaml:"timeout"`       // seconds
	ImageTimeout      int    `yaml:"image_timeout"` // seconds
	Encoding          string `yaml:"encoding"`
	AllowGzip         *bool  `yaml:"allow_gzip"`
	UserAgent         string `yaml:"user_agent"`
	CookieFile        string `yaml:"cookiefile"`
	ContinueOnTimeout bool   `yaml:"continue_on_timeout"`
	AllowRepeats      bool   `yaml:"allow_repeats"`
	AllowDupTitles    bool   `yaml:"allow_dup_titles"`
	SaveDays          int    `yaml:"save_days"`
	Readability       bool   `yaml:"readability"`

	SkipImages          bool     `yaml:"skip_images"`
	NonlocalImages      bool     `yaml:"nonlocal_images"`
	BlockNonlocalImages bool     `yaml:"block_nonlocal_images"`
	AltDomains          []string `yaml:"alt_domains"`
	MaxImageSize        int      `yaml:"max_image_size"`
	MaxSrcsetSize       int      `yaml:"max_srcset_size"`

	SkipLinks            bool     `yaml:"skip_links"`
	SkipLinkPats         []string `yaml:"skip_link_pats"`
	SkipTitlePats        []string `yaml:"skip_title_pats"`
	SkipContentPats      []string `yaml:"skip_content_pats"`
	IndexSkipContentPats []string `yaml:"index_skip_content_pats"`
	PageStart            []string `yaml:"page_start"`
	PageEnd              []string `yaml:"page_end"`
	SkipPats             []string `yaml:"skip_pats"`
	SkipNodes            []string `yaml:"skip_nodes"`
	SinglePagePats       []string `yaml:"single_page_pats"`
	MultipagePat         string   `yaml:"multipage_pat"`
	URLSubstitute        []string `yaml:"url_substitute"`

	MinWidth     int `yaml:"min_width"`
	RSSEntrySize int `yaml:"rss_entry_size"`

	FeedHelper string            `yaml:"feed_helper"`
	PageHelper string            `yaml:"page_helper"`
	HelperArgs map[string]string `yaml:"helper_args"`
	Formats    []string          `yaml:"formats"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

func (s ConfigSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s ConfigSettings) GzipAllowed() bool {
	return s.AllowGzip == nil || *s.AllowGzip
}
