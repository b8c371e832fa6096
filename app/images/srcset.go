package images

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var descriptorPattern = regexp.MustCompile(`\s+([0-9]+(?:\.[0-9]+)?)([wxWX])$`)

// Candidate is one entry of a srcset attribute. Descriptor is "" when the
// entry carries no width or density.
type Candidate struct {
	URL        string
	Descriptor string
}

// Width returns the pixel width of a "400w" style descriptor.
func (c Candidate) Width() (int, bool) {
	d := strings.ToLower(c.Descriptor)
	if !strings.HasSuffix(d, "w") {
		return 0, false
	}
	w, err := strconv.Atoi(strings.TrimSuffix(d, "w"))
	if err != nil {
		return 0, false
	}
	return w, true
}

// ParseSrcset splits a srcset attribute into candidates. A comma is only
// treated as a separator when the text before it ended in a descriptor or
// the text after it starts with whitespace; otherwise it belongs to the URL.
func ParseSrcset(attr string) []Candidate {
	var cands []Candidate

	for _, part := range strings.Split(strings.TrimSpace(attr), ",") {
		if n := len(cands); n > 0 && cands[n-1].Descriptor == "" &&
			part != "" && !unicode.IsSpace(rune(part[0])) {
			part = cands[n-1].URL + "," + part
			cands = cands[:n-1]
		}

		part = strings.TrimRightFunc(part, unicode.IsSpace)
		if strings.TrimSpace(part) == "" {
			continue
		}

		if loc := descriptorPattern.FindStringIndex(part); loc != nil {
			cands = append(cands, Candidate{
				URL:        strings.TrimSpace(part[:loc[0]]),
				Descriptor: strings.ToLower(strings.TrimSpace(part[loc[0]:])),
			})
			continue
		}
		cands = append(cands, Candidate{URL: strings.TrimSpace(part)})
	}

	return cands
}

// SelectCandidate picks the widest width-tagged candidate not wider than
// maxWidth, falling back to the first candidate. maxWidth <= 0 means no cap.
func SelectCandidate(cands []Candidate, maxWidth int) string {
	if len(cands) == 0 {
		return ""
	}

	best, bestWidth := "", 0
	for _, c := range cands {
		w, ok := c.Width()
		if !ok {
			continue
		}
		if w > bestWidth && (maxWidth <= 0 || w <= maxWidth) {
			best, bestWidth = c.URL, w
		}
	}
	if best != "" {
		return best
	}
	return cands[0].URL
}
