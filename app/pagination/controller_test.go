package pagination

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/fetch"
	"github.com/lysyi3m/rss-offline/app/normalize"
)

type fakeDownloader struct {
	pages    map[string]string
	encoding string
	calls    []string
}

func (d *fakeDownloader) Download(ctx context.Context, rawURL, referrer string) (*fetch.Document, error) {
	d.calls = append(d.calls, rawURL)
	text, ok := d.pages[rawURL]
	if !ok {
		return nil, &fetch.HTTPError{URL: rawURL, StatusCode: 404, Status: "404 Not Found"}
	}
	encoding := d.encoding
	if encoding == "" {
		encoding = "utf-8"
	}
	return &fetch.Document{URL: rawURL, Text: text, Encoding: encoding}, nil
}

func (d *fakeDownloader) called(rawURL string) bool {
	for _, c := range d.calls {
		if c == rawURL {
			return true
		}
	}
	return false
}

func newTestController(t *testing.T, settings feed.ConfigSettings, pages map[string]string) (*Controller, *fakeDownloader) {
	t.Helper()
	fc, err := feed.NewContext(&feed.Config{Name: "test", Settings: settings}, feed.Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	d := &fakeDownloader{pages: pages}
	return NewController(fc, d, normalize.New(fc, nil)), d
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRunWritesDocument(t *testing.T) {
	c, _ := newTestController(t, feed.ConfigSettings{}, map[string]string{
		"https://example.com/a": "<p>Story body</p>",
	})
	path := filepath.Join(t.TempDir(), "0.html")

	out, err := c.Run(context.Background(), Request{URL: "https://example.com/a", Title: "Story & more", Footer: "<hr>footer", Path: path})
	if err != nil {
		t.Fatal(err)
	}

	got := readFile(t, path)
	if !strings.HasPrefix(got, "<html>\n<head>\n<meta http-equiv=\"Content-Type\" content=\"text/html; charset=utf-8\">") {
		t.Errorf("Expected header, got %q", got)
	}
	if !strings.Contains(got, "<title>Story &amp; more</title>") {
		t.Errorf("Expected escaped title, got %q", got)
	}
	if !strings.Contains(got, "Story body") {
		t.Errorf("Expected body, got %q", got)
	}
	if !strings.HasSuffix(got, "<hr>footer\n</body>\n</html>\n") {
		t.Errorf("Expected footer and closing tags last, got %q", got)
	}
	if out.Pages != 1 || out.Substituted {
		t.Errorf("Unexpected outcome: %+v", out)
	}
	if last := out.States[len(out.States)-1]; last != Done {
		t.Errorf("Expected terminal state done, got %s", last)
	}
}

func TestRunNoContentLeavesNoFile(t *testing.T) {
	c, _ := newTestController(t, feed.ConfigSettings{}, map[string]string{
		"https://example.com/a": "<html><body>  <div>\n</div> </body></html>",
	})
	path := filepath.Join(t.TempDir(), "0.html")

	_, err := c.Run(context.Background(), Request{URL: "https://example.com/a", Title: "Title", Path: path})
	if !errors.Is(err, feed.ErrNoContent) {
		t.Fatalf("Expected ErrNoContent, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no output file")
	}
}

func TestRunSinglePageSubstitution(t *testing.T) {
	pages := map[string]string{
		"https://example.com/story":         `<p>Page one of three <a href="/story?print=1">Print</a></p>`,
		"https://example.com/story?print=1": `<p>The whole story</p>`,
	}
	c, d := newTestController(t, feed.ConfigSettings{SinglePagePats: []string{`print=1`}}, pages)
	dir := t.TempDir()
	path := filepath.Join(dir, "0.html")

	out, err := c.Run(context.Background(), Request{URL: "https://example.com/story", Title: "T", Footer: "F", Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Substituted || out.URL != "https://example.com/story?print=1" {
		t.Errorf("Expected substitution, got %+v", out)
	}

	// The final file must be exactly what the single page alone produces.
	direct, _ := newTestController(t, feed.ConfigSettings{}, pages)
	directPath := filepath.Join(dir, "direct.html")
	if _, err := direct.Run(context.Background(), Request{URL: "https://example.com/story?print=1", Title: "T", Footer: "F", Path: directPath}); err != nil {
		t.Fatal(err)
	}
	if readFile(t, path) != readFile(t, directPath) {
		t.Errorf("Expected substituted output to equal the single page output:\n%s\nvs\n%s", readFile(t, path), readFile(t, directPath))
	}

	if _, err := os.Stat(path + ".single"); !os.IsNotExist(err) {
		t.Error("Expected temporary single-page file to be gone")
	}
	if len(d.calls) != 2 {
		t.Errorf("Expected 2 downloads, got %v", d.calls)
	}
}

func TestRunSinglePageFailureKeepsPrimary(t *testing.T) {
	c, _ := newTestController(t, feed.ConfigSettings{SinglePagePats: []string{`print=1`}}, map[string]string{
		"https://example.com/story": `<p>Primary text <a href="/story?print=1">Print</a></p>`,
	})
	path := filepath.Join(t.TempDir(), "0.html")

	out, err := c.Run(context.Background(), Request{URL: "https://example.com/story", Footer: "F", Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if out.Substituted {
		t.Error("Expected no substitution")
	}
	if len(out.Failures) != 1 || !strings.HasPrefix(out.Failures[0], "single-page version https://example.com/story?print=1") {
		t.Errorf("Expected the failed single-page fetch to be reported, got %v", out.Failures)
	}

	got := readFile(t, path)
	if !strings.Contains(got, "Primary text") || !strings.HasSuffix(got, "F"+pageClose) {
		t.Errorf("Expected complete primary output, got %q", got)
	}
	if _, err := os.Stat(path + ".single"); !os.IsNotExist(err) {
		t.Error("Expected no leftover single-page file")
	}
}

func TestRunSinglePageRecursionBounded(t *testing.T) {
	c, d := newTestController(t, feed.ConfigSettings{SinglePagePats: []string{`print=`}}, map[string]string{
		"https://example.com/story":         `<p>One <a href="/story?print=1">Print</a></p>`,
		"https://example.com/story?print=1": `<p>Full <a href="/story?print=2">Print again</a></p>`,
		"https://example.com/story?print=2": `<p>Never</p>`,
	})
	path := filepath.Join(t.TempDir(), "0.html")

	if _, err := c.Run(context.Background(), Request{URL: "https://example.com/story", Path: path}); err != nil {
		t.Fatal(err)
	}
	if d.called("https://example.com/story?print=2") {
		t.Error("Expected single-page substitution to happen at most once")
	}
	if !strings.Contains(readFile(t, path), "Full") {
		t.Error("Expected the first single-page version to be used")
	}
}

func TestRunMultiPageAppends(t *testing.T) {
	c, _ := newTestController(t, feed.ConfigSettings{MultipagePat: `/story/[0-9]+$`}, map[string]string{
		"https://example.com/story/1": `<p>Part one</p><a href="/story/2">2</a> <a href="/story/3">3</a>`,
		"https://example.com/story/3": `<p>Part three</p>`,
	})
	path := filepath.Join(t.TempDir(), "0.html")

	out, err := c.Run(context.Background(), Request{URL: "https://example.com/story/1", Title: "Multi", Footer: "END", Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if out.Pages != 2 {
		t.Errorf("Expected 2 pages after one failed continuation, got %d", out.Pages)
	}
	if len(out.Failures) != 1 || !strings.Contains(out.Failures[0], "https://example.com/story/2") {
		t.Errorf("Expected the failed continuation page to be reported, got %v", out.Failures)
	}

	got := readFile(t, path)
	one, three := strings.Index(got, "Part one"), strings.Index(got, "Part three")
	if one < 0 || three < 0 || three < one {
		t.Errorf("Expected pages in order, got %q", got)
	}
	if strings.Count(got, "<h1>") != 1 {
		t.Errorf("Expected a single heading, got %q", got)
	}
	if strings.Count(got, "END") != 1 || !strings.HasSuffix(got, "END"+pageClose) {
		t.Errorf("Expected one footer at the end, got %q", got)
	}
}

func TestRunWritesResolvedEncoding(t *testing.T) {
	c, d := newTestController(t, feed.ConfigSettings{}, map[string]string{
		"https://example.com/a": "<p>café</p>",
	})
	d.encoding = "windows-1252"
	path := filepath.Join(t.TempDir(), "0.html")

	out, err := c.Run(context.Background(), Request{URL: "https://example.com/a", Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if out.Encoding != "windows-1252" {
		t.Errorf("Expected windows-1252, got %s", out.Encoding)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("caf\xe9")) {
		t.Errorf("Expected single-byte encoding in file, got %q", data)
	}
	if !bytes.Contains(data, []byte("charset=windows-1252")) {
		t.Errorf("Expected charset in header, got %q", data)
	}
}
