package normalize

import (
	"slices"
)

// State is what normalizing one page learned about it.
type State struct {
	// BaseHref resolves relative references. It starts as the page URL and
	// is replaced by the first <base href> in the document.
	BaseHref string
	// WroteData is set once any non-whitespace text survives cleanup.
	WroteData bool
	// SinglePageURL is the first link matching single_page_pats, or a meta
	// refresh target.
	SinglePageURL string
	// MultiPageURLs are the links matching multipage_pat, in document order.
	MultiPageURLs []string
	// MetaRefresh is the target of a suppressed meta refresh, if any.
	MetaRefresh string
}

func (s *State) addMultiPage(href string) {
	if href == "" || slices.Contains(s.MultiPageURLs, href) {
		return
	}
	s.MultiPageURLs = append(s.MultiPageURLs, href)
}
