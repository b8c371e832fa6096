package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lysyi3m/rss-offline/app/feed"
)

const (
	maxRedirects = 10
	maxBodySize  = 32 << 20
)

var textTypes = map[string]bool{
	"application/xhtml+xml": true,
	"application/xml":       true,
	"application/rss+xml":   true,
	"application/x-rss+xml": true,
	"application/atom+xml":  true,
	"application/rdf+xml":   true,
}

// Document is a fetched, decoded page.
type Document struct {
	URL         string // after redirects
	Host        string
	Prefix      string // scheme://host/
	ContentType string
	Encoding    string
	Raw         []byte
	Text        string
}

// Fetcher downloads pages and images for one feed. All requests share one
// cookie jar so a site sees a single session.
type Fetcher struct {
	fc     *feed.Context
	client *http.Client
}

func New(fc *feed.Context) (*Fetcher, error) {
	jar, err := NewJar(fc.Settings.CookieFile)
	if err != nil {
		return nil, err
	}

	return NewWithClient(fc, &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}), nil
}

func NewWithClient(fc *feed.Context, client *http.Client) *Fetcher {
	return &Fetcher{fc: fc, client: client}
}

// Download fetches a text document and decodes it. Empty bodies yield
// feed.ErrNoContent, non-text responses a *NotTextError.
func (f *Fetcher) Download(ctx context.Context, rawURL, referrer string) (*Document, error) {
	raw, finalURL, contentType, err := f.get(ctx, rawURL, referrer, f.fc.Timeout)
	if err != nil {
		return nil, err
	}

	if !isTextType(contentType) {
		return nil, &NotTextError{URL: rawURL, ContentType: contentType}
	}
	// Some servers gzip pages without saying so.
	if isGzip(raw) {
		if raw, err = gunzip(raw); err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", rawURL, err)
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty response from %s", feed.ErrNoContent, rawURL)
	}

	doc := &Document{
		URL:         finalURL.String(),
		Host:        finalURL.Host,
		ContentType: contentType,
		Raw:         raw,
	}
	if finalURL.Scheme != "file" {
		doc.Prefix = finalURL.Scheme + "://" + finalURL.Host + "/"
	}

	doc.Encoding = ResolveEncoding(f.fc.Settings.Encoding, contentType, raw)
	doc.Text = Decode(raw, doc.Encoding)

	slog.Debug("Downloaded page", "feed", f.fc.Name, "url", doc.URL, "encoding", doc.Encoding, "bytes", len(raw))
	return doc, nil
}

// Get fetches raw bytes with the image timeout and no content type check.
func (f *Fetcher) Get(ctx context.Context, rawURL, referrer string) ([]byte, string, error) {
	raw, _, contentType, err := f.get(ctx, rawURL, referrer, f.fc.ImageTimeout)
	return raw, contentType, err
}

func (f *Fetcher) get(ctx context.Context, rawURL, referrer string, timeout time.Duration) ([]byte, *url.URL, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	if u.Scheme == "file" {
		raw, err := readLocal(u)
		if err != nil {
			return nil, nil, "", err
		}
		// Local files carry no charset of their own.
		contentType, _, _ := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(u.Path)))
		return raw, u, contentType, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, nil, "", fmt.Errorf("unsupported URL scheme %q in %s", u.Scheme, rawURL)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.fc.UserAgent)
	if referrer != "" {
		req.Header.Set("Referer", referrer)
	}
	// An explicit header also stops the transport from asking for gzip itself.
	if f.fc.Settings.GzipAllowed() {
		req.Header.Set("Accept-Encoding", "gzip")
	} else {
		req.Header.Set("Accept-Encoding", "identity")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, "", &HTTPError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		raw, err = gunzip(raw)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to decompress %s: %w", rawURL, err)
		}
	}

	return raw, resp.Request.URL, resp.Header.Get("Content-Type"), nil
}

func readLocal(u *url.URL) ([]byte, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, nil
}

func isTextType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return strings.HasPrefix(mediaType, "text/") || textTypes[mediaType]
}

func isGzip(raw []byte) bool {
	return len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b
}

func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxBodySize))
}
