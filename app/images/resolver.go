package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lysyi3m/rss-offline/app/feed"
)

// BlockedSrc replaces non-local images when block_nonlocal_images is set.
const BlockedSrc = "file:///nonexistent"

var (
	// lazy-load attributes come first, sites stash the real source there
	srcAttrs     = []string{"data-src", "data-lazy-src", "data-original", "src"}
	srcsetAttrs  = []string{"data-lazy-srcset", "data-srcset", "srcset"}
	droppedAttrs = []string{"srcset", "data-srcset", "data-lazy-srcset", "data-src", "data-lazy-src", "data-original", "sizes", "loading"}
)

// Decision records what Resolve did with an image element.
type Decision int

const (
	Skipped Decision = iota
	Inline
	Local
	PassThrough
	Blocked
)

func (d Decision) String() string {
	switch d {
	case Inline:
		return "inline"
	case Local:
		return "local"
	case PassThrough:
		return "pass-through"
	case Blocked:
		return "blocked"
	default:
		return "skipped"
	}
}

// Getter fetches raw bytes. *fetch.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL, referrer string) ([]byte, string, error)
}

// Resolver localizes the images of one item. Each image URL is fetched at
// most once per Resolver.
type Resolver struct {
	fc     *feed.Context
	getter Getter
	outDir string
	record map[string]string
	failed []string
}

func NewResolver(fc *feed.Context, getter Getter, outDir string) *Resolver {
	return &Resolver{
		fc:     fc,
		getter: getter,
		outDir: outDir,
		record: make(map[string]string),
	}
}

// Resolve rewrites one img element in place, pointing it at a local copy,
// at the original URL, or at BlockedSrc.
func (r *Resolver) Resolve(ctx context.Context, img *goquery.Selection, baseHref string) Decision {
	if goquery.NodeName(img) == "svg" {
		return Inline
	}

	src := r.pickSource(img)
	for _, attr := range droppedAttrs {
		img.RemoveAttr(attr)
	}
	if src == "" {
		return Skipped
	}
	if strings.HasPrefix(src, "data:") {
		img.SetAttr("src", src)
		return Inline
	}

	src = feed.AbsoluteURL(src, baseHref)
	if !r.eligible(hostOf(src), hostOf(baseHref)) {
		slog.Debug("Image host too different, not fetching", "feed", r.fc.Name, "url", src)
		return r.passThrough(img, src)
	}

	if name, ok := r.record[src]; ok {
		img.SetAttr("src", name)
		return Local
	}

	name, err := r.localize(ctx, img, src, baseHref)
	if err != nil {
		slog.Warn("Failed to fetch image", "feed", r.fc.Name, "url", src, "error", err)
		r.failed = append(r.failed, fmt.Sprintf("%s: %v", src, err))
		return r.passThrough(img, src)
	}

	r.record[src] = name
	img.SetAttr("src", name)
	return Local
}

// Record returns the image URL to local name mapping built so far.
func (r *Resolver) Record() map[string]string {
	return r.record
}

// Failures lists the images that could not be fetched, as "url: error".
func (r *Resolver) Failures() []string {
	return r.failed
}

func (r *Resolver) pickSource(img *goquery.Selection) string {
	src := ""
	for _, attr := range srcAttrs {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			src = strings.TrimSpace(v)
			break
		}
	}

	for _, attr := range srcsetAttrs {
		v, ok := img.Attr(attr)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if chosen := SelectCandidate(ParseSrcset(v), r.fc.Settings.MaxSrcsetSize); chosen != "" {
			src = chosen
		}
		break
	}

	return src
}

func (r *Resolver) eligible(imgHost, pageHost string) bool {
	if r.fc.Settings.NonlocalImages || SameHost(imgHost, pageHost) {
		return true
	}
	for _, domain := range r.fc.Settings.AltDomains {
		if SameHost(imgHost, domain) {
			return true
		}
	}
	return false
}

func (r *Resolver) passThrough(img *goquery.Selection, src string) Decision {
	if !r.fc.Settings.BlockNonlocalImages {
		img.SetAttr("src", src)
		return PassThrough
	}

	img.SetAttr("src", BlockedSrc)
	link := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr:     []html.Attribute{{Key: "href", Val: src}},
	}
	link.AppendChild(&html.Node{Type: html.TextNode, Data: " [nonlocal image]"})
	img.AfterNodes(link)
	return Blocked
}

// localize downloads src into outDir unless a file of that name is already
// there, then enforces max_image_size on the file and the element.
func (r *Resolver) localize(ctx context.Context, img *goquery.Selection, src, referrer string) (string, error) {
	name := LocalName(src)
	path := filepath.Join(r.outDir, name)

	data, err := os.ReadFile(path)
	existing := err == nil
	if !existing {
		data, err = r.download(ctx, path, src, referrer)
		if err != nil {
			return "", err
		}
		slog.Debug("Fetched image", "feed", r.fc.Name, "url", src, "file", name, "bytes", len(data))
	}

	maxSize := r.fc.Settings.MaxImageSize
	if maxSize <= 0 {
		return name, nil
	}

	width, height, resized, err := downsize(path, data, maxSize)
	if errors.Is(err, errUnknownFormat) {
		return name, nil
	}
	if err != nil {
		if existing {
			slog.Debug("Can't measure existing image", "feed", r.fc.Name, "file", name, "error", err)
			return name, nil
		}
		os.Remove(path)
		return "", err
	}
	if resized {
		slog.Debug("Resized image", "feed", r.fc.Name, "file", name, "width", width, "height", height)
	}
	if resized || declaredOver(img, maxSize) {
		if _, ok := img.Attr("width"); ok {
			img.SetAttr("width", strconv.Itoa(width))
		}
		if _, ok := img.Attr("height"); ok {
			img.SetAttr("height", strconv.Itoa(height))
		}
	}

	return name, nil
}

func (r *Resolver) download(ctx context.Context, path, src, referrer string) ([]byte, error) {
	data, _, err := r.getter.Get(ctx, src, referrer)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	if err := os.MkdirAll(r.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	return data, nil
}

// declaredOver reports whether the element asks for a width or height
// larger than maxSize.
func declaredOver(img *goquery.Selection, maxSize int) bool {
	for _, attr := range []string{"width", "height"} {
		v, ok := img.Attr(attr)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > maxSize {
			return true
		}
	}
	return false
}
