package normalize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lysyi3m/rss-offline/app/feed"
)

// Elements deleted together with everything inside them.
var removedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Form:     true,
	atom.Input:    true,
	atom.Textarea: true,
	atom.Button:   true,
	atom.Select:   true,
	atom.Iframe:   true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Applet:   true,
	atom.Head:     true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Base:     true,
	atom.Video:    true,
	atom.Audio:    true,
	atom.Source:   true,
	atom.Track:    true,
}

// Elements replaced by their children.
var unwrappedTags = map[atom.Atom]bool{
	atom.Font: true,
	atom.Html: true,
	atom.Body: true,
}

var imageTags = map[atom.Atom]bool{
	atom.Img:     true,
	atom.Svg:     true,
	atom.Picture: true,
	atom.Figure:  true,
}

// walker makes one depth-first pass over the body. A removed element takes
// its whole subtree with it, so nested removals need no bookkeeping.
type walker struct {
	fc               *feed.Context
	state            *State
	detectSinglePage bool
}

func (w *walker) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		w.visit(c)
		c = next
	}
}

func (w *walker) visit(n *html.Node) {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		n.Parent.RemoveChild(n)
		return
	case html.TextNode:
		if !w.state.WroteData && strings.TrimSpace(n.Data) != "" {
			w.state.WroteData = true
		}
		return
	case html.ElementNode:
	default:
		return
	}

	a := n.DataAtom
	if a == 0 {
		// svg children and custom elements have no atom
		a = atom.Lookup([]byte(strings.ToLower(n.Data)))
	}

	if removedTags[a] || (w.fc.Settings.SkipImages && imageTags[a]) {
		n.Parent.RemoveChild(n)
		return
	}

	cleanStyle(n)
	if a == atom.A {
		w.rewriteLink(n)
	}

	w.walk(n)

	if unwrappedTags[a] || (a == atom.A && w.fc.Settings.SkipLinks) {
		unwrap(n)
	}
}

// rewriteLink makes the href absolute and checks it against the single-page
// and multipage patterns.
func (w *walker) rewriteLink(n *html.Node) {
	i := attrIndex(n, "href")
	if i < 0 {
		return
	}
	raw := strings.TrimSpace(n.Attr[i].Val)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return
	}

	if w.detectSinglePage && w.state.SinglePageURL == "" {
		if pat := feed.MatchAny(w.fc.SinglePagePats, raw); pat != nil {
			w.state.SinglePageURL = feed.AbsoluteURL(raw, w.state.BaseHref)
		}
	}

	href := feed.AbsoluteURL(raw, w.state.BaseHref)
	n.Attr[i].Val = href

	if w.fc.MultipagePat != nil && w.fc.MultipagePat.MatchString(raw) {
		w.state.addMultiPage(href)
	}
}

// cleanStyle drops style attributes that set colors, which fight with the
// reader's own theme.
func cleanStyle(n *html.Node) {
	i := attrIndex(n, "style")
	if i < 0 {
		return
	}
	style := strings.ToLower(n.Attr[i].Val)
	if strings.Contains(style, "color") || strings.Contains(style, "background") {
		n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
	}
}

func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

func attrIndex(n *html.Node, key string) int {
	for i, attr := range n.Attr {
		if attr.Namespace == "" && strings.EqualFold(attr.Key, key) {
			return i
		}
	}
	return -1
}
