package helpers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lysyi3m/rss-offline/app/fsutil"
)

// CopyFeed copies a feed some other program already built. The source
// directory comes from the "dir" helper argument and must hold index.html.
type CopyFeed struct {
	srcDir string
}

func NewCopyFeed(args Args) (FeedFetcher, error) {
	dir := strings.TrimSpace(args["dir"])
	if dir == "" {
		return nil, fmt.Errorf("copyfeed needs a dir helper argument")
	}
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	return &CopyFeed{srcDir: dir}, nil
}

func (c *CopyFeed) FetchFeed(ctx context.Context, outDir string) ([]string, error) {
	if _, err := os.Stat(filepath.Join(c.srcDir, "index.html")); err != nil {
		return nil, fmt.Errorf("no feed to copy under %s: %w", c.srcDir, err)
	}

	entries, err := os.ReadDir(c.srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.srcDir, err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	var copied []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		if err := fsutil.CopyFile(filepath.Join(c.srcDir, entry.Name()), filepath.Join(outDir, entry.Name())); err != nil {
			return copied, err
		}
		copied = append(copied, entry.Name())
	}

	slog.Debug("Copied feed", "from", c.srcDir, "to", outDir, "files", len(copied))
	return copied, nil
}
