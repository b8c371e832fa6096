package helpers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/lysyi3m/rss-offline/app/fetch"
)

const storyHTML = `<html><head><title>Story</title></head><body>
<nav>Home | World | Sports</nav>
<article>
<h1>Story Title</h1>
<p>This is the main content of the article. It contains several paragraphs of meaningful text that should be extracted by the readability algorithm.</p>
<p>This is another paragraph with more content. The readability algorithm should identify this as the main content area and extract it properly.</p>
<p>Here is some more substantial content to ensure we meet the character threshold. This paragraph adds more context and information that would be valuable to readers.</p>
</article>
<footer>Copyright</footer>
</body></html>`

type stubDownloader struct {
	text string
	err  error
}

func (d *stubDownloader) Download(ctx context.Context, rawURL, referrer string) (*fetch.Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &fetch.Document{URL: rawURL, Text: d.text, Encoding: "utf-8"}, nil
}

func TestRegistryUnknownHelpers(t *testing.T) {
	r := NewRegistry()

	if _, err := r.FeedHelper("nope", nil); err == nil || !strings.Contains(err.Error(), "copyfeed") {
		t.Errorf("Expected unknown feed helper error listing copyfeed, got %v", err)
	}
	if _, err := r.ArticleHelper("nope", nil, &stubDownloader{}); err == nil || !strings.Contains(err.Error(), "readability") {
		t.Errorf("Expected unknown page helper error listing readability, got %v", err)
	}
}

func TestExpandArgs(t *testing.T) {
	args := ExpandArgs(map[string]string{
		"log":    "$f/helper.log",
		"dir":    "$d/prebuilt",
		"plain":  "value",
		"escape": `\$f stays`,
	}, "/out/10-16-Fri/news", "/out/10-16-Fri")

	if args["log"] != "/out/10-16-Fri/news/helper.log" {
		t.Errorf("Expected $f expanded, got %s", args["log"])
	}
	if args["dir"] != "/out/10-16-Fri/prebuilt" {
		t.Errorf("Expected $d expanded, got %s", args["dir"])
	}
	if args["plain"] != "value" {
		t.Errorf("Expected plain value kept, got %s", args["plain"])
	}
	if args["escape"] != `\$f stays` {
		t.Errorf("Expected escaped value kept, got %s", args["escape"])
	}
}

func TestCopyFeed(t *testing.T) {
	src := t.TempDir()
	for name, content := range map[string]string{"index.html": "<p>index</p>", "0.html": "<p>story</p>", "img.png": "png"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(src, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	helper, err := NewRegistry().FeedHelper("copyfeed", Args{"dir": src})
	if err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "feed")
	copied, err := helper.FetchFeed(context.Background(), dst)
	if err != nil {
		t.Fatal(err)
	}

	slices.Sort(copied)
	if !slices.Equal(copied, []string{"0.html", "img.png", "index.html"}) {
		t.Errorf("Unexpected copied files: %v", copied)
	}
	data, err := os.ReadFile(filepath.Join(dst, "0.html"))
	if err != nil || string(data) != "<p>story</p>" {
		t.Errorf("Expected story copied, got %q (%v)", data, err)
	}
}

func TestCopyFeedWithoutIndex(t *testing.T) {
	helper, err := NewCopyFeed(Args{"dir": t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := helper.FetchFeed(context.Background(), t.TempDir()); err == nil {
		t.Error("Expected error when the source has no index.html")
	}

	if _, err := NewCopyFeed(Args{}); err == nil {
		t.Error("Expected error without a dir argument")
	}
}

func TestReadabilityHelper(t *testing.T) {
	helper, err := NewRegistry().ArticleHelper("readability", nil, &stubDownloader{text: storyHTML})
	if err != nil {
		t.Fatal(err)
	}

	content, err := helper.FetchArticle(context.Background(), "https://example.com/story")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "main content of the article") {
		t.Errorf("Expected article text, got %q", content)
	}
	if strings.Contains(content, "Home | World") {
		t.Errorf("Expected navigation to be dropped, got %q", content)
	}
}

func TestReadabilityHelperDownloadError(t *testing.T) {
	boom := errors.New("connection refused")
	helper, err := NewReadability(nil, &stubDownloader{err: boom})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := helper.FetchArticle(context.Background(), "https://example.com/"); !errors.Is(err, boom) {
		t.Errorf("Expected download error, got %v", err)
	}
}
