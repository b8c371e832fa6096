package images

import (
	"strings"
	"testing"
)

func TestLocalName(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{"https://example.com/img/photo.jpg", "https__example.com_img_photo.jpg"},
		{"https://example.com/a b?x=1&y=2.png", "https__example.com_abx1y2.png"},
		{"https://example.com/café.png", "https__example.com_caf.png"},
		{"///", "_unknown.img"},
	}

	for _, tt := range tests {
		if got := LocalName(tt.src); got != tt.want {
			t.Errorf("LocalName(%q): expected %q, got %q", tt.src, tt.want, got)
		}
	}
}

func TestLocalNameKeepsTail(t *testing.T) {
	src := "https://example.com/" + strings.Repeat("x", 300) + ".jpg"
	got := LocalName(src)
	if len(got) != maxNameLength {
		t.Errorf("Expected %d characters, got %d", maxNameLength, len(got))
	}
	if !strings.HasSuffix(got, ".jpg") {
		t.Errorf("Expected extension to survive, got %s", got)
	}
}

func TestSameHost(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"images.example.com", "www.example.com", true},
		{"example.com", "www.example.com", true},
		{"WWW.Example.COM:8080", "example.com", true},
		{"cdn.other.net", "www.example.com", false},
		{"", "", true},
		{"", "example.com", false},
	}

	for _, tt := range tests {
		if got := SameHost(tt.a, tt.b); got != tt.want {
			t.Errorf("SameHost(%q, %q): expected %v, got %v", tt.a, tt.b, tt.want, got)
		}
	}
}
