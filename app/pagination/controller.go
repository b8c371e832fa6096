package pagination

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"

	"github.com/lysyi3m/rss-offline/app/feed"
	"github.com/lysyi3m/rss-offline/app/fetch"
	"github.com/lysyi3m/rss-offline/app/normalize"
)

const pageHeader = `<html>
<head>
<meta http-equiv="Content-Type" content="text/html; charset=%s">
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" type="text/css" title="Feeds" href="../../feeds.css"/>
<title>%s</title>
</head>

<body>
`

const pageClose = "\n</body>\n</html>\n"

// maxDepth bounds single-page substitution: the substituted page is never
// substituted again.
const maxDepth = 1

type State int

const (
	Fetching State = iota
	Normalizing
	Substituting
	Continuing
	Done
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Normalizing:
		return "normalizing"
	case Substituting:
		return "substituting"
	case Continuing:
		return "continuing"
	default:
		return "done"
	}
}

type Downloader interface {
	Download(ctx context.Context, rawURL, referrer string) (*fetch.Document, error)
}

type PageNormalizer interface {
	Normalize(ctx context.Context, text string, opts normalize.Options) (*normalize.Result, error)
}

// Request describes one item's story.
type Request struct {
	URL      string
	Referrer string
	Title    string
	Author   string
	Footer   string
	Path     string // output file
}

// Outcome summarizes a finished story.
type Outcome struct {
	URL         string // page the output came from
	Pages       int
	Substituted bool
	Encoding    string
	States      []State
	// Failures lists pages that were tried and given up on.
	Failures []string
}

// Controller turns one item link into one output file, following a
// single-page link or a run of continuation pages when the site has them.
type Controller struct {
	fc         *feed.Context
	downloader Downloader
	normalizer PageNormalizer
}

func NewController(fc *feed.Context, downloader Downloader, normalizer PageNormalizer) *Controller {
	return &Controller{
		fc:         fc,
		downloader: downloader,
		normalizer: normalizer,
	}
}

// Run writes req.Path. When the first page yields nothing it returns the
// error and leaves no file behind.
func (c *Controller) Run(ctx context.Context, req Request) (*Outcome, error) {
	return c.run(ctx, req, 0)
}

func (c *Controller) run(ctx context.Context, req Request, depth int) (*Outcome, error) {
	out := &Outcome{}

	c.enter(out, Fetching, req.URL)
	doc, err := c.downloader.Download(ctx, req.URL, req.Referrer)
	if err != nil {
		return nil, err
	}

	c.enter(out, Normalizing, doc.URL)
	res, err := c.normalizer.Normalize(ctx, doc.Text, normalize.Options{
		PageURL:          doc.URL,
		Title:            req.Title,
		Author:           req.Author,
		DetectSinglePage: depth < maxDepth,
	})
	if err != nil {
		return nil, err
	}

	encoding, err := writePage(req.Path, req.Title, res.Body, doc.Encoding)
	if err != nil {
		return nil, err
	}
	out.URL = doc.URL
	out.Encoding = encoding
	out.Pages = 1

	switch {
	case depth < maxDepth && res.SinglePageURL != "" && res.SinglePageURL != req.URL && res.SinglePageURL != doc.URL:
		c.enter(out, Substituting, res.SinglePageURL)
		if sub := c.substitute(ctx, out, req, res.SinglePageURL, doc.URL, depth); sub != nil {
			out.URL = sub.URL
			out.Encoding = sub.Encoding
			out.Substituted = true
			out.Failures = append(out.Failures, sub.Failures...)
			c.enter(out, Done, out.URL)
			return out, nil
		}

	case depth == 0 && len(res.MultiPageURLs) > 0:
		c.enter(out, Continuing, doc.URL)
		for _, href := range res.MultiPageURLs {
			if href == req.URL || href == doc.URL {
				continue
			}
			if err := c.appendPage(ctx, req.Path, href, doc.URL, encoding); err != nil {
				slog.Warn("Failed to fetch continuation page", "feed", c.fc.Name, "url", href, "error", err)
				out.Failures = append(out.Failures, fmt.Sprintf("continuation page %s: %v", href, err))
				continue
			}
			out.Pages++
		}
	}

	if err := appendText(req.Path, req.Footer+pageClose, encoding); err != nil {
		return nil, err
	}
	c.enter(out, Done, out.URL)
	return out, nil
}

// substitute fetches the single-page version next to the primary output
// and renames it over the primary. A nil result means the primary stays.
func (c *Controller) substitute(ctx context.Context, out *Outcome, req Request, singleURL, referrer string, depth int) *Outcome {
	single := req
	single.URL = singleURL
	single.Referrer = referrer
	single.Path = req.Path + ".single"

	sub, err := c.run(ctx, single, depth+1)
	if err != nil {
		slog.Warn("Failed to fetch single-page version", "feed", c.fc.Name, "url", singleURL, "error", err)
		out.Failures = append(out.Failures, fmt.Sprintf("single-page version %s: %v", singleURL, err))
		os.Remove(single.Path)
		return nil
	}

	if err := os.Rename(single.Path, req.Path); err != nil {
		slog.Warn("Failed to replace page with single-page version", "feed", c.fc.Name, "error", err)
		out.Failures = append(out.Failures, fmt.Sprintf("single-page version %s: %v", singleURL, err))
		os.Remove(single.Path)
		return nil
	}
	return sub
}

func (c *Controller) appendPage(ctx context.Context, path, pageURL, referrer, encoding string) error {
	doc, err := c.downloader.Download(ctx, pageURL, referrer)
	if err != nil {
		return err
	}

	res, err := c.normalizer.Normalize(ctx, doc.Text, normalize.Options{
		PageURL:      doc.URL,
		Continuation: true,
	})
	if err != nil {
		return err
	}

	return appendText(path, "\n"+res.Body, encoding)
}

func (c *Controller) enter(out *Outcome, s State, url string) {
	out.States = append(out.States, s)
	slog.Debug("Pagination state", "feed", c.fc.Name, "state", s.String(), "url", url)
}

// writePage creates path with the document header and body. It returns the
// encoding actually used, which later appends must reuse.
func writePage(path, title, body, encoding string) (string, error) {
	encodedBody, used := fetch.Encode(body, encoding)
	encodedHeader, _ := fetch.Encode(fmt.Sprintf(pageHeader, used, html.EscapeString(title)), used)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(encodedHeader); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := f.Write(encodedBody); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return used, nil
}

func appendText(path, text, encoding string) error {
	data, _ := fetch.Encode(text, encoding)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return f.Close()
}
