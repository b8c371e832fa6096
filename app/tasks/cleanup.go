package tasks

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/rss-offline/app/convert"
)

var dayDirPattern = regexp.MustCompile(`^\d{2}-\d{2}-[A-Z][a-z]{2}$`)

// CleanUp removes day directories and converted books older than days.
// It returns the removed paths.
func CleanUp(outputDir string, days int, now time.Time) ([]string, error) {
	if days <= 0 {
		return nil, nil
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	entries, err := os.ReadDir(outputDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		path := filepath.Join(outputDir, entry.Name())

		switch {
		case entry.IsDir() && dayDirPattern.MatchString(entry.Name()):
			if olderThan(entry, cutoff) {
				if err := os.RemoveAll(path); err != nil {
					return removed, fmt.Errorf("failed to remove %s: %w", path, err)
				}
				removed = append(removed, path)
			}

		case entry.IsDir() && slices.Contains(convert.Formats(), entry.Name()):
			books, err := os.ReadDir(path)
			if err != nil {
				return removed, fmt.Errorf("failed to list %s: %w", path, err)
			}
			for _, book := range books {
				if book.IsDir() || !olderThan(book, cutoff) {
					continue
				}
				bookPath := filepath.Join(path, book.Name())
				if err := os.Remove(bookPath); err != nil {
					return removed, fmt.Errorf("failed to remove %s: %w", bookPath, err)
				}
				removed = append(removed, bookPath)
			}
		}
	}

	return removed, nil
}

func olderThan(entry fs.DirEntry, cutoff time.Time) bool {
	info, err := entry.Info()
	return err == nil && info.ModTime().Before(cutoff)
}

// WriteManifest lists the files of every written feed, relative to dayDir.
// Directories and HTML come first so a reader can skip images. The last
// line is .EOF. so a partial file is recognizable.
func WriteManifest(dayDir, runID string, results []*FeedResult) error {
	var pages, other []string
	for _, result := range results {
		name, err := filepath.Rel(dayDir, result.Dir)
		if err != nil {
			return fmt.Errorf("failed to relate %s to %s: %w", result.Dir, dayDir, err)
		}
		pages = append(pages, filepath.ToSlash(name)+"/")

		files, err := os.ReadDir(result.Dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", result.Dir, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			rel := filepath.ToSlash(filepath.Join(name, f.Name()))
			if strings.HasSuffix(f.Name(), ".html") {
				pages = append(pages, rel)
			} else {
				other = append(other, rel)
			}
		}
	}

	f, err := os.Create(filepath.Join(dayDir, "MANIFEST"))
	if err != nil {
		return fmt.Errorf("failed to create MANIFEST: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# run %s\n", runID)
	for _, line := range pages {
		fmt.Fprintln(w, line)
	}
	for _, line := range other {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, ".EOF.")

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write MANIFEST: %w", err)
	}
	return f.Close()
}
