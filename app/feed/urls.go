package feed

import (
	"net/url"
	"strings"
)

// AbsoluteURL resolves ref against base. Fragments, already absolute URLs
// and anything that fails to parse come back unchanged.
func AbsoluteURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.Contains(ref, "://") {
		return ref
	}
	if base == "" {
		return ref
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// RootURL returns scheme://host/ for rawURL, the base later absolute-path
// references resolve against.
func RootURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host + "/"
}
