package seen

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/rss-offline/app/fsutil"
)

const (
	versionMarker   = "SeenCache v. 1"
	versionPrefix   = "SeenCache v."
	maxBackupSuffix = 10
)

// ReadError means an existing cache file could not be read. A run must not
// continue without dedup state unless caching was explicitly disabled.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read cache file %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Cache maps a feed URL to the item identifiers seen on its last
// successful run.
type Cache struct {
	path         string
	retention    time.Duration
	feeds        map[string][]string
	lastModified time.Time
}

func New(path string, retention time.Duration) *Cache {
	return &Cache{
		path:      path,
		retention: retention,
		feeds:     make(map[string][]string),
	}
}

// Load reads the cache at path. A missing file yields an empty cache and
// its parent directories are created. An existing file is backed up first.
func Load(path string, retention time.Duration) (*Cache, error) {
	c := New(path, retention)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		slog.Debug("No cache file yet", "path", path)
		return c, nil
	}
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	c.lastModified = info.ModTime()

	if _, err := c.BackUp(); err != nil {
		slog.Warn("Couldn't back up cache file", "path", path, "error", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	if err := c.read(f); err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	slog.Debug("Cache loaded", "path", path, "feeds", len(c.feeds))
	return c, nil
}

func (c *Cache) read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return scanner.Err()
	}
	if !strings.HasPrefix(scanner.Text(), versionPrefix) {
		slog.Warn("Cache file has no version marker, starting over without cache", "path", c.path)
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		feedURL, ids, ok := strings.Cut(line, "|")
		if !ok {
			slog.Warn("Skipping malformed cache line", "line", line)
			continue
		}
		c.Record(strings.TrimSpace(feedURL), strings.Fields(ids))
	}

	return scanner.Err()
}

// BackUp copies the cache file to a name stamped with its modification date.
func (c *Cache) BackUp() (string, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(c.path)
	base := strings.TrimSuffix(c.path, ext)
	backupBase := fmt.Sprintf("%s-%s%s", base, info.ModTime().Format("06-01-02-Mon"), ext)

	backup := ""
	for num := range maxBackupSuffix {
		candidate := backupBase
		if num > 0 {
			candidate = fmt.Sprintf("%s-%d", backupBase, num)
		}
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			backup = candidate
			break
		}
	}
	if backup == "" {
		return "", fmt.Errorf("no free backup name for %s", backupBase)
	}

	if err := fsutil.CopyFile(c.path, backup); err != nil {
		return "", fmt.Errorf("failed to copy cache file: %w", err)
	}

	slog.Debug("Cache backed up", "backup", backup)
	return backup, nil
}

func (c *Cache) Contains(feedURL, id string) bool {
	return slices.Contains(c.feeds[feedURL], id)
}

// Record replaces the identifier set of a feed. Duplicates are dropped.
func (c *Cache) Record(feedURL string, ids []string) {
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(unique, id) {
			unique = append(unique, id)
		}
	}
	c.feeds[feedURL] = unique
}

func (c *Cache) IDs(feedURL string) []string {
	return slices.Clone(c.feeds[feedURL])
}

func (c *Cache) Feeds() []string {
	feeds := make([]string, 0, len(c.feeds))
	for feedURL := range c.feeds {
		feeds = append(feeds, feedURL)
	}
	slices.Sort(feeds)
	return feeds
}

// Prune drops feeds that are not in keep and returns their URLs.
func (c *Cache) Prune(keep []string) []string {
	var dropped []string
	for _, feedURL := range c.Feeds() {
		if !slices.Contains(keep, feedURL) {
			delete(c.feeds, feedURL)
			dropped = append(dropped, feedURL)
		}
	}
	return dropped
}

// LastModified is the modification time of the file the cache was loaded
// from, zero for a fresh cache.
func (c *Cache) LastModified() time.Time {
	return c.lastModified
}

// Save rewrites the whole cache file and then removes expired backups.
func (c *Cache) Save() error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprintln(w, versionMarker)
	for _, feedURL := range c.Feeds() {
		fmt.Fprintf(w, "%s|%s\n", encodeID(feedURL), strings.Join(mapIDs(c.feeds[feedURL]), " "))
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	c.removeOldBackups()
	return nil
}

func (c *Cache) removeOldBackups() {
	if c.retention <= 0 {
		return
	}

	ext := filepath.Ext(c.path)
	pattern := strings.TrimSuffix(c.path, ext) + "-*"
	backups, err := filepath.Glob(pattern)
	if err != nil {
		slog.Warn("Couldn't list cache backups", "error", err)
		return
	}

	cutoff := time.Now().Add(-c.retention)
	for _, backup := range backups {
		info, err := os.Stat(backup)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(backup); err != nil {
			slog.Warn("Couldn't remove old cache backup", "backup", backup, "error", err)
			continue
		}
		slog.Debug("Removed old cache backup", "backup", backup)
	}
}

func encodeID(s string) string {
	return strings.ReplaceAll(s, " ", "+")
}

func mapIDs(ids []string) []string {
	encoded := make([]string, len(ids))
	for i, id := range ids {
		encoded[i] = encodeID(id)
	}
	return encoded
}
