package images

import (
	"net/url"
	"strings"
)

const maxNameLength = 200

// LocalName derives the on-disk file name for an image URL: slashes become
// underscores and anything outside [A-Za-z0-9._-] is dropped. Overlong
// names keep their tail, which holds the extension.
func LocalName(src string) string {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(src, "/", "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	name := b.String()
	if len(name) > maxNameLength {
		name = name[len(name)-maxNameLength:]
	}
	if strings.Trim(name, "._") == "" {
		return "_unknown.img"
	}
	return name
}

// SameHost reports whether two hosts share their last two labels, so
// images.example.com and www.example.com count as one site.
func SameHost(host1, host2 string) bool {
	host1, host2 = normalizeHost(host1), normalizeHost(host2)
	if host1 == "" || host2 == "" {
		return host1 == host2
	}
	return lastLabels(host1) == lastLabels(host2)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if u, err := url.Parse("//" + host); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return strings.TrimSuffix(host, ".")
}

func lastLabels(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		labels = labels[len(labels)-2:]
	}
	return strings.Join(labels, ".")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
