package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		feedName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(feedName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "feed", feedName, "enabled", config.Settings.IsEnabled(), "levels", config.Settings.Levels)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(feedName string) (*Config, error) {
	configFile := cc.getConfigFilePath(feedName)
	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	feedConfig.Name = feedName

	if err := cc.validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.Name] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedName]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedName)
	}
	return feedConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledConfigs returns enabled feeds sorted by name.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	var enabled []*Config
	for _, v := range cc.cache {
		if v.Settings.IsEnabled() {
			enabled = append(enabled, v)
		}
	}
	slices.SortFunc(enabled, func(a, b *Config) int {
		return strings.Compare(a.Name, b.Name)
	})
	return enabled
}

// FeedURLs lists the URL of every configured feed, enabled or not.
func (cc *ConfigCache) FeedURLs() []string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	urls := make([]string, 0, len(cc.cache))
	for _, v := range cc.cache {
		urls = append(urls, v.URL)
	}
	return urls
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Images are skipped and remote ones blocked unless a feed opts in.
	feedConfig := Config{Settings: ConfigSettings{SkipImages: true, BlockNonlocalImages: true}}
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	s := &feedConfig.Settings
	if s.Levels == 0 {
		s.Levels = 2
	}
	if s.Timeout == 0 {
		s.Timeout = 20
	}
	if s.ImageTimeout == 0 {
		s.ImageTimeout = 8
	}
	if s.MaxImageSize == 0 {
		s.MaxImageSize = 1200
	}
	if s.MaxSrcsetSize == 0 {
		s.MaxSrcsetSize = 800
	}
	if s.MinWidth == 0 {
		s.MinWidth = 25
	}

	return &feedConfig, nil
}

func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	requiredFeedFields := map[string]string{
		"feed name": feedConfig.Name,
		"feed URL":  feedConfig.URL,
	}

	for fieldName, fieldValue := range requiredFeedFields {
		if fieldValue == "" && !(fieldName == "feed URL" && feedConfig.Settings.FeedHelper != "") {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	s := feedConfig.Settings
	nonNegativeFields := map[string]int{
		"levels":          s.Levels,
		"timeout":         s.Timeout,
		"image timeout":   s.ImageTimeout,
		"max image size":  s.MaxImageSize,
		"max srcset size": s.MaxSrcsetSize,
		"save days":       s.SaveDays,
		"min width":       s.MinWidth,
		"rss entry size":  s.RSSEntrySize,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if n := len(s.URLSubstitute); n != 0 && n != 2 {
		return fmt.Errorf("url_substitute needs exactly two entries, got %d", n)
	}

	validFields := map[string]bool{
		"title":      true,
		"content":    true,
		"author":     true,
		"link":       true,
		"categories": true,
	}

	for i, filter := range feedConfig.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(feedName string) string {
	return filepath.Join(cc.feedsDir, feedName+".yml")
}
