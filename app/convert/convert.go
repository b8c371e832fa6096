// Package convert turns a finished feed index into e-book formats with an
// external converter. Only the exit status is used.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const DefaultCommand = "ebook-convert"

var formatFlags = map[string][]string{
	"epub": {"--no-default-epub-cover", "--dont-split-on-page-breaks"},
	"fb2":  {"--disable-font-rescaling"},
	"azw3": {},
	"mobi": {},
	"pdf":  {},
}

// Formats lists the output formats the converter accepts.
func Formats() []string {
	names := make([]string, 0, len(formatFlags))
	for name := range formatFlags {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type Converter struct {
	Command   string
	OutputDir string
	Now       time.Time
}

func New(outputDir string, now time.Time) *Converter {
	return &Converter{
		Command:   DefaultCommand,
		OutputDir: outputDir,
		Now:       now,
	}
}

// Convert writes <OutputDir>/<format>/<Day>_<feed>.<format> and returns
// its path.
func (c *Converter) Convert(ctx context.Context, indexFile, feedName, format string) (string, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	flags, ok := formatFlags[format]
	if !ok {
		return "", fmt.Errorf("unsupported output format %q", format)
	}

	dir := filepath.Join(c.OutputDir, format)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	name := c.Now.Format("Mon") + "_" + strings.ReplaceAll(feedName, " ", "_") + "." + format
	out := filepath.Join(dir, name)

	args := []string{indexFile, out, "--authors", c.Now.Format("01-02 Mon") + " feeds"}
	args = append(args, flags...)

	slog.Debug("Running converter", "command", c.Command, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, c.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			slog.Debug("Converter output", "output", trimmed)
		}
		return "", fmt.Errorf("failed to run %s for %s: %w", c.Command, format, err)
	}

	return out, nil
}
