package feed

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"
)

// IndexEntry is one story on a feed's index page. Href is either the local
// page (N.html plus any anchor) or the story link; empty means no link.
type IndexEntry struct {
	Title   string
	Href    string
	Author  string
	Content string
}

// Generator builds a feed's index.html.
type Generator struct {
	feedName  string
	feedTitle string
	minWidth  int
	now       time.Time
	body      bytes.Buffer
	entries   int
}

func NewGenerator(feedName, feedTitle string, minWidth int, now time.Time) *Generator {
	return &Generator{
		feedName:  feedName,
		feedTitle: feedTitle,
		minWidth:  minWidth,
		now:       now,
	}
}

// AddEntry appends a story and returns its anchor number.
func (g *Generator) AddEntry(entry IndexEntry) int {
	anchor := g.entries
	if anchor > 0 {
		g.writeNextLink(anchor)
	}
	g.entries++

	title := entry.Title
	if n := len([]rune(title)); n < g.minWidth {
		title += strings.Repeat(". ", g.minWidth-n) + "__"
	}

	fmt.Fprintf(&g.body, "<p><a name=\"%d\">&nbsp;</a>", anchor)
	if entry.Href != "" {
		fmt.Fprintf(&g.body, "<a href=\"%s\"><b>%s</b></a>\n", html.EscapeString(entry.Href), html.EscapeString(title))
	} else {
		fmt.Fprintf(&g.body, "\n<b>%s</b>\n", html.EscapeString(title))
	}
	if entry.Author != "" {
		fmt.Fprintf(&g.body, "<br><i>%s</i>\n", html.EscapeString(entry.Author))
	}

	content := entry.Content
	if strings.TrimSpace(content) == "" {
		content = "[No content]"
	}
	g.body.WriteString("<br>\n")
	g.body.WriteString(content)
	g.body.WriteString("\n")

	return anchor
}

// AddNote appends raw HTML, such as a "No content for" line, between stories.
func (g *Generator) AddNote(note string) {
	g.body.WriteString("<p>")
	g.body.WriteString(note)
	g.body.WriteString("\n")
}

func (g *Generator) Entries() int {
	return g.entries
}

func (g *Generator) Run(footer string) string {
	var buf bytes.Buffer
	day := g.now.Format("Mon")

	buf.WriteString("<html>\n<head>\n")
	buf.WriteString("<meta http-equiv=\"Content-Type\" content=\"text/html; charset=utf-8\">\n")
	buf.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	fmt.Fprintf(&buf, "<title>%s: %s</title>\n", day, html.EscapeString(g.feedName))
	buf.WriteString("<link rel=\"stylesheet\" type=\"text/css\" title=\"Feeds\" href=\"../../feeds.css\"/>\n")
	buf.WriteString("</head>\n\n<body>\n")
	fmt.Fprintf(&buf, "<h1>%s: %s: %s</h1>\n\n", day, html.EscapeString(g.feedName), html.EscapeString(g.feedTitle))

	buf.Write(g.body.Bytes())

	buf.WriteString("<br>\n<center><i>[end]</i></center>\n<br>\n")
	buf.WriteString(footer)
	buf.WriteString("\n</body>\n</html>\n")

	return buf.String()
}

func (g *Generator) writeNextLink(anchor int) {
	fmt.Fprintf(&g.body, "<br>\n<center><i><a href=\"#%d\">&gt;-&gt;</a></i></center>\n<br>\n", anchor)
}
