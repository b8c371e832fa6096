package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/images"
)

const pageURL = "https://www.example.com/news/story.html"

type recordingResolver struct {
	bases []string
}

func (r *recordingResolver) Resolve(ctx context.Context, img *goquery.Selection, baseHref string) images.Decision {
	r.bases = append(r.bases, baseHref)
	img.SetAttr("src", "local.png")
	return images.Local
}

func newTestNormalizer(t *testing.T, settings feed.ConfigSettings) (*Normalizer, *recordingResolver) {
	t.Helper()
	fc, err := feed.NewContext(&feed.Config{Name: "test", Settings: settings}, feed.Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	resolver := &recordingResolver{}
	return New(fc, resolver), resolver
}

func normalize(t *testing.T, n *Normalizer, markup string, opts Options) *Result {
	t.Helper()
	if opts.PageURL == "" {
		opts.PageURL = pageURL
	}
	res, err := n.Normalize(context.Background(), markup, opts)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return res
}

func TestNormalizeRemovesScriptSubtree(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<html><body><p>Story text</p><script>var x = "<b>hidden</b>";</script><form><p>signup</p></form></body></html>`, Options{})

	if strings.Contains(res.Body, "script") || strings.Contains(res.Body, "hidden") {
		t.Errorf("Expected script and contents to be gone, got %q", res.Body)
	}
	if strings.Contains(res.Body, "signup") {
		t.Errorf("Expected form subtree to be gone, got %q", res.Body)
	}
	if !strings.Contains(res.Body, "Story text") {
		t.Errorf("Expected story text to remain, got %q", res.Body)
	}
}

func TestNormalizeUnwrapsEmbeddedBody(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<div><html><body><p>Inner text</p></body></html></div><font color="red">Colored</font>`, Options{})

	if !strings.Contains(res.Body, "Inner text") {
		t.Errorf("Expected wrapped text to remain, got %q", res.Body)
	}
	if strings.Contains(res.Body, "<body") || strings.Contains(res.Body, "<html") {
		t.Errorf("Expected embedded wrappers to be removed, got %q", res.Body)
	}
	if strings.Contains(res.Body, "<font") || !strings.Contains(res.Body, "Colored") {
		t.Errorf("Expected font to be unwrapped, got %q", res.Body)
	}
}

func TestNormalizeWhitespaceOnlyIsNoContent(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})

	for _, markup := range []string{"", "   \n\t", `<html><body> <div>  </div><script>text()</script></body></html>`} {
		_, err := n.Normalize(context.Background(), markup, Options{PageURL: pageURL, Title: "Title"})
		if !errors.Is(err, feed.ErrNoContent) {
			t.Errorf("Expected ErrNoContent for %q, got %v", markup, err)
		}
	}
}

func TestNormalizeSkipContentPats(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{SkipContentPats: []string{"Subscribers only"}})

	_, err := n.Normalize(context.Background(), "<p>Subscribers only</p>", Options{PageURL: pageURL})
	if !errors.Is(err, feed.ErrNoContent) {
		t.Errorf("Expected ErrNoContent, got %v", err)
	}
}

func TestNormalizeRewritesLinks(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<p><a href="/other">Other</a> <a href="#top">Top</a></p>`, Options{})

	if !strings.Contains(res.Body, `href="https://www.example.com/other"`) {
		t.Errorf("Expected absolute link, got %q", res.Body)
	}
	if !strings.Contains(res.Body, `href="#top"`) {
		t.Errorf("Expected fragment link untouched, got %q", res.Body)
	}
}

func TestNormalizeBaseHref(t *testing.T) {
	n, resolver := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<html><head><base href="https://static.example.com/root/"></head><body><p><a href="page2">Next</a><img src="a.png"></p></body></html>`, Options{})

	if res.BaseHref != "https://static.example.com/root/" {
		t.Errorf("Expected base href from document, got %s", res.BaseHref)
	}
	if !strings.Contains(res.Body, `href="https://static.example.com/root/page2"`) {
		t.Errorf("Expected link resolved against base, got %q", res.Body)
	}
	if len(resolver.bases) != 1 || resolver.bases[0] != "https://static.example.com/root/" {
		t.Errorf("Expected image resolved against base, got %v", resolver.bases)
	}
	if strings.Contains(res.Body, "<base") {
		t.Errorf("Expected base element removed, got %q", res.Body)
	}
}

func TestNormalizeSinglePageDetection(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{SinglePagePats: []string{`print=1`}})
	markup := `<p>Text <a href="/story?print=1">Print</a> <a href="/other?print=1">Second</a></p>`

	res := normalize(t, n, markup, Options{DetectSinglePage: true})
	if res.SinglePageURL != "https://www.example.com/story?print=1" {
		t.Errorf("Expected first matching link, got %q", res.SinglePageURL)
	}
	if !strings.Contains(res.Body, "Text") {
		t.Errorf("Expected normal processing to continue, got %q", res.Body)
	}

	res = normalize(t, n, markup, Options{DetectSinglePage: false})
	if res.SinglePageURL != "" {
		t.Errorf("Expected no detection when disabled, got %q", res.SinglePageURL)
	}
}

func TestNormalizeMultiPageDetection(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{MultipagePat: `story/page/[0-9]+`})
	markup := `<p>Page one</p>
<a href="/story/page/2">2</a> <a href="/story/page/3">3</a>
<a href="https://www.example.com/story/page/2">Next</a>`

	res := normalize(t, n, markup, Options{})
	want := []string{"https://www.example.com/story/page/2", "https://www.example.com/story/page/3"}
	if len(res.MultiPageURLs) != len(want) {
		t.Fatalf("Expected %v, got %v", want, res.MultiPageURLs)
	}
	for i := range want {
		if res.MultiPageURLs[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, res.MultiPageURLs[i])
		}
	}
}

func TestNormalizeMultiPageMatchesHrefAsWritten(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{
		MultipagePat:   `^\?page=\d+`,
		SinglePagePats: []string{`^\?view=all`},
	})
	markup := `<p>Page one</p>
<a href="?page=2">2</a> <a href="https://www.example.com/news/story.html?page=3">3</a>
<a href="?view=all">All</a>`

	res := normalize(t, n, markup, Options{DetectSinglePage: true})
	if res.SinglePageURL != pageURL+"?view=all" {
		t.Errorf("Expected single page URL, got %q", res.SinglePageURL)
	}
	if len(res.MultiPageURLs) != 1 || res.MultiPageURLs[0] != pageURL+"?page=2" {
		t.Errorf("Expected only the relative continuation made absolute, got %v", res.MultiPageURLs)
	}
}

func TestNormalizeMetaRefresh(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<html><head><meta http-equiv="Refresh" content="0; URL=/full-story"></head><body><p>Redirecting</p></body></html>`, Options{DetectSinglePage: true})

	if res.SinglePageURL != "https://www.example.com/full-story" {
		t.Errorf("Expected refresh target as single page URL, got %q", res.SinglePageURL)
	}
	if !strings.Contains(res.Body, "Meta refresh suppressed") {
		t.Errorf("Expected refresh note, got %q", res.Body)
	}
}

func TestNormalizeSkipNodes(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{SkipNodes: []string{`div class="promo"`, "aside"}})
	res := normalize(t, n, `<div class="promo big">Buy now</div><aside>Related</aside><div class="story">Real story</div>`, Options{})

	if strings.Contains(res.Body, "Buy now") || strings.Contains(res.Body, "Related") {
		t.Errorf("Expected skipped nodes removed, got %q", res.Body)
	}
	if !strings.Contains(res.Body, "Real story") {
		t.Errorf("Expected story to remain, got %q", res.Body)
	}
}

func TestNormalizeStripsColorStyles(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<p style="background-color: black">Dark</p><p style="margin: 0">Plain</p>`, Options{})

	if strings.Contains(res.Body, "background") {
		t.Errorf("Expected color style removed, got %q", res.Body)
	}
	if !strings.Contains(res.Body, `style="margin: 0"`) {
		t.Errorf("Expected other styles kept, got %q", res.Body)
	}
	if !strings.Contains(res.Body, "Dark") {
		t.Errorf("Expected element kept, got %q", res.Body)
	}
}

func TestNormalizeSkipLinks(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{SkipLinks: true})
	res := normalize(t, n, `<p>See <a href="/x"><b>this</b></a></p>`, Options{})

	if strings.Contains(res.Body, "<a") {
		t.Errorf("Expected anchors unwrapped, got %q", res.Body)
	}
	if !strings.Contains(res.Body, "<b>this</b>") {
		t.Errorf("Expected link text kept, got %q", res.Body)
	}
}

func TestNormalizeSkipImages(t *testing.T) {
	n, resolver := newTestNormalizer(t, feed.ConfigSettings{SkipImages: true})
	res := normalize(t, n, `<p>Text<img src="a.png"></p><figure><img src="b.png"><figcaption>Cap</figcaption></figure>`, Options{})

	if strings.Contains(res.Body, "<img") {
		t.Errorf("Expected images removed, got %q", res.Body)
	}
	if len(resolver.bases) != 0 {
		t.Errorf("Expected resolver not to be called, got %d calls", len(resolver.bases))
	}
}

func TestNormalizeDelegatesImages(t *testing.T) {
	n, resolver := newTestNormalizer(t, feed.ConfigSettings{})
	res := normalize(t, n, `<p>Text<img src="a.png"><img src="b.png"></p>`, Options{})

	if len(resolver.bases) != 2 {
		t.Errorf("Expected 2 resolver calls, got %d", len(resolver.bases))
	}
	if strings.Count(res.Body, `src="local.png"`) != 2 {
		t.Errorf("Expected rewritten sources, got %q", res.Body)
	}
}

func TestNormalizeSynthesizesHeading(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})

	res := normalize(t, n, `<p>Body</p>`, Options{Title: "A <Title>", Author: "Jane Doe"})
	if !strings.HasPrefix(res.Body, "<h1>A &lt;Title&gt;</h1><p>By: Jane Doe</p>") {
		t.Errorf("Expected heading and byline first, got %q", res.Body)
	}

	res = normalize(t, n, `<h1>Own heading</h1><p>Body</p>`, Options{Title: "Feed title"})
	if strings.Contains(res.Body, "Feed title") {
		t.Errorf("Expected existing heading to be kept alone, got %q", res.Body)
	}

	res = normalize(t, n, `<p>Body</p>`, Options{Title: "Title", Continuation: true})
	if strings.Contains(res.Body, "<h1>") {
		t.Errorf("Expected no heading on continuation pages, got %q", res.Body)
	}
}

func TestNormalizeHeadingDoesNotCountAsContent(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{})

	_, err := n.Normalize(context.Background(), `<div></div>`, Options{PageURL: pageURL, Title: "Title", Author: "Someone"})
	if !errors.Is(err, feed.ErrNoContent) {
		t.Errorf("Expected ErrNoContent, got %v", err)
	}
}

func TestNormalizePageStartEndAndSkipPats(t *testing.T) {
	n, _ := newTestNormalizer(t, feed.ConfigSettings{
		PageStart: []string{`<article>`},
		PageEnd:   []string{`</article>`},
		SkipPats:  []string{`<div class="ad">.*?</div>`},
	})
	markup := "<nav>Menu</nav><article><p>Story</p><div class=\"ad\">\nAdvert\n</div><p>More</p></article><footer>Foot</footer>"

	res := normalize(t, n, markup, Options{})
	for _, gone := range []string{"Menu", "Advert", "Foot"} {
		if strings.Contains(res.Body, gone) {
			t.Errorf("Expected %q to be trimmed, got %q", gone, res.Body)
		}
	}
	if !strings.Contains(res.Body, "Story") || !strings.Contains(res.Body, "More") {
		t.Errorf("Expected story kept, got %q", res.Body)
	}
}

func TestRefreshTarget(t *testing.T) {
	tests := map[string]string{
		"0; URL=http://example.com/": "http://example.com/",
		"5;url='/next'":              "/next",
		"30":                         "",
		"URL=/direct":                "/direct",
	}
	for content, want := range tests {
		if got := refreshTarget(content); got != want {
			t.Errorf("refreshTarget(%q): expected %q, got %q", content, want, got)
		}
	}
}
