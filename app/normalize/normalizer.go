package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/images"
)

// ImageResolver localizes one img or svg element.
type ImageResolver interface {
	Resolve(ctx context.Context, img *goquery.Selection, baseHref string) images.Decision
}

// Options describe the page being normalized.
type Options struct {
	PageURL string
	Title   string // used for a synthesized <h1>
	Author  string
	// Continuation pages get neither a heading nor an author line.
	Continuation bool
	// DetectSinglePage is false once a single-page URL has already been
	// followed for this item.
	DetectSinglePage bool
}

// Result is a cleaned page body plus what was learned on the way.
type Result struct {
	State
	Body string // inner HTML of <body>
}

type Normalizer struct {
	fc        *feed.Context
	images    ImageResolver
	extractor *feed.ContentExtractor
}

func New(fc *feed.Context, resolver ImageResolver) *Normalizer {
	return &Normalizer{
		fc:        fc,
		images:    resolver,
		extractor: feed.NewContentExtractor(),
	}
}

// Normalize cleans one fetched page. It returns feed.ErrNoContent when the
// page matches skip_content_pats or nothing readable is left.
func (n *Normalizer) Normalize(ctx context.Context, text string, opts Options) (*Result, error) {
	if pat := feed.MatchAny(n.fc.SkipContentPats, text); pat != nil {
		return nil, fmt.Errorf("%w: matched skip_content_pats %q", feed.ErrNoContent, pat.String())
	}

	text = n.trim(text, opts.PageURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	state := &State{BaseHref: opts.PageURL}
	n.readHead(doc, state, opts)
	n.removeSkipNodes(doc)

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil, fmt.Errorf("%w: document has no body", feed.ErrNoContent)
	}

	w := &walker{fc: n.fc, state: state, detectSinglePage: opts.DetectSinglePage && state.SinglePageURL == ""}
	w.walk(body.Get(0))

	if !state.WroteData {
		return nil, fmt.Errorf("%w: no real content", feed.ErrNoContent)
	}

	if !n.fc.Settings.SkipImages && n.images != nil {
		body.Find("img, svg").Each(func(i int, img *goquery.Selection) {
			d := n.images.Resolve(ctx, img, state.BaseHref)
			slog.Debug("Image resolved", "feed", n.fc.Name, "decision", d.String())
		})
	}

	if !opts.Continuation {
		n.prependHeader(body, opts)
	}
	if state.MetaRefresh != "" {
		body.PrependNodes(metaRefreshNote(state.MetaRefresh))
	}

	markup, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}

	return &Result{State: *state, Body: markup}, nil
}

// trim applies the raw-text options: readability, page_start, page_end
// and skip_pats, in that order.
func (n *Normalizer) trim(text, pageURL string) string {
	if n.fc.Settings.Readability {
		article, err := n.extractor.Run(text, pageURL)
		if err != nil {
			slog.Warn("Readability failed, using full page", "feed", n.fc.Name, "url", pageURL, "error", err)
		} else {
			text = article
		}
	}

	for _, pat := range n.fc.PageStart {
		if loc := pat.FindStringIndex(text); loc != nil {
			text = text[loc[1]:]
			break
		}
	}
	for _, pat := range n.fc.PageEnd {
		if loc := pat.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
			break
		}
	}
	for _, pat := range n.fc.SkipPats {
		text = pat.ReplaceAllString(text, "")
	}

	return text
}

// readHead picks up <base href> and meta refresh before the walk removes
// them.
func (n *Normalizer) readHead(doc *goquery.Document, state *State, opts Options) {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		state.BaseHref = feed.AbsoluteURL(href, opts.PageURL)
	}

	doc.Find("meta[http-equiv]").EachWithBreak(func(i int, meta *goquery.Selection) bool {
		equiv, _ := meta.Attr("http-equiv")
		content, ok := meta.Attr("content")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") || !ok {
			return true
		}
		target := refreshTarget(content)
		if target == "" {
			return true
		}

		state.MetaRefresh = feed.AbsoluteURL(target, state.BaseHref)
		if opts.DetectSinglePage {
			state.SinglePageURL = state.MetaRefresh
		}
		return false
	})
}

func (n *Normalizer) removeSkipNodes(doc *goquery.Document) {
	for _, spec := range n.fc.SkipNodes {
		matched := doc.Find(spec.Tag)
		if spec.Value != nil {
			matched = matched.FilterFunction(func(i int, s *goquery.Selection) bool {
				v, ok := s.Attr(spec.Attr)
				return ok && spec.Value.MatchString(v)
			})
		}
		if matched.Length() > 0 {
			slog.Debug("Removing skipped nodes", "feed", n.fc.Name, "tag", spec.Tag, "count", matched.Length())
			matched.Remove()
		}
	}
}

func (n *Normalizer) prependHeader(body *goquery.Selection, opts Options) {
	var nodes []*html.Node
	if opts.Title != "" && body.Find("h1").Length() == 0 {
		nodes = append(nodes, element(atom.H1, textNode(opts.Title)))
	}
	if opts.Author != "" {
		nodes = append(nodes, element(atom.P, textNode("By: "+opts.Author)))
	}
	if len(nodes) > 0 {
		body.PrependNodes(nodes...)
	}
}

// refreshTarget extracts the URL from a meta refresh content value such as
// "0; URL=http://example.com/". A bare delay reloads the same page.
func refreshTarget(content string) string {
	_, target, found := strings.Cut(content, ";")
	if !found {
		target = content
	}
	target = strings.TrimSpace(target)
	if len(target) >= 4 && strings.EqualFold(target[:4], "url=") {
		target = strings.TrimSpace(target[4:])
	} else if !found {
		return ""
	}
	return strings.Trim(target, `'"`)
}

func metaRefreshNote(target string) *html.Node {
	link := element(atom.A, textNode(target))
	link.Attr = []html.Attribute{{Key: "href", Val: target}}
	return element(atom.P, textNode("Meta refresh suppressed: "), link)
}

func element(a atom.Atom, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
