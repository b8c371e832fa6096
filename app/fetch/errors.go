package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// HTTPError is a completed request with a non-success status.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error fetching %s: %s", e.URL, e.Status)
}

// NotTextError rejects responses that are not HTML, XML or plain text.
type NotTextError struct {
	URL         string
	ContentType string
}

func (e *NotTextError) Error() string {
	return fmt.Sprintf("content type is not text: %s (%s)", e.ContentType, e.URL)
}

// CookieSourceError means the configured cookie file could not be used.
type CookieSourceError struct {
	Path string
	Err  error
}

func (e *CookieSourceError) Error() string {
	return fmt.Sprintf("failed to load cookies from %s: %v", e.Path, e.Err)
}

func (e *CookieSourceError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err came from a deadline rather than a refusal.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
