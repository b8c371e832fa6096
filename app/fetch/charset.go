package fetch

import (
	"bytes"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	defaultEncoding = "utf-8"
	prescanLimit    = 4096
)

// ResolveEncoding picks a document's encoding: the explicit override, then
// the Content-Type charset parameter, then a meta declaration near the top
// of the document, then UTF-8. Unknown labels are skipped.
func ResolveEncoding(override, contentType string, raw []byte) string {
	if name, ok := canonical(override); ok {
		return name
	}

	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if name, ok := canonical(params["charset"]); ok {
				return name
			}
		}
	}

	if name, ok := canonical(metaCharset(raw)); ok {
		return name
	}

	return defaultEncoding
}

// Decode converts raw bytes in the named encoding to UTF-8 text. Invalid
// sequences are replaced rather than rejected.
func Decode(raw []byte, name string) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	enc, err := htmlindex.Get(name)
	if err != nil || enc == encoding.Nop || name == defaultEncoding {
		return lossyUTF8(raw)
	}

	text, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		slog.Debug("Strict decode failed, replacing invalid characters", "encoding", name, "error", err)
		return lossyUTF8(raw)
	}
	return string(text)
}

// Encode converts UTF-8 text to the named encoding. Characters the encoding
// cannot represent become HTML character references. It returns the
// encoding actually used.
func Encode(text, name string) ([]byte, string) {
	canon, ok := canonical(name)
	if !ok || canon == defaultEncoding {
		return []byte(text), defaultEncoding
	}

	enc, err := htmlindex.Get(canon)
	if err != nil {
		return []byte(text), defaultEncoding
	}

	out, err := encoding.HTMLEscapeUnsupported(enc.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		slog.Debug("Encoding failed, writing UTF-8", "encoding", canon, "error", err)
		return []byte(text), defaultEncoding
	}
	return out, canon
}

func canonical(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", false
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return "", false
	}
	return name, true
}

func lossyUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	slog.Debug("Invalid UTF-8 in document, replacing bad bytes")
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

// metaCharset looks for <meta charset> or an http-equiv Content-Type
// declaration in the first few kilobytes of a document.
func metaCharset(raw []byte) string {
	if len(raw) > prescanLimit {
		raw = raw[:prescanLimit]
	}

	z := html.NewTokenizer(bytes.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "body" {
				return ""
			}
			if string(name) != "meta" || !hasAttr {
				continue
			}

			var charset, httpEquiv, content string
			for {
				key, val, more := z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "charset":
					charset = string(val)
				case "http-equiv":
					httpEquiv = string(val)
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}

			if charset != "" {
				return charset
			}
			if strings.EqualFold(httpEquiv, "content-type") {
				if _, params, err := mime.ParseMediaType(content); err == nil && params["charset"] != "" {
					return params["charset"]
				}
			}
		}
	}
}
