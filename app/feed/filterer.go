package feed

import (
	"fmt"
	"strings"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run marks every item the feed's patterns and filters exclude. Items are
// returned in feed order; excluded ones carry IsFiltered and a reason.
func (f *Filterer) Run(items []Item, fc *Context) []Item {
	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		isFiltered, filterReason := f.applyPatterns(item, fc)
		if !isFiltered {
			isFiltered, filterReason = f.applyFilters(item, fc.Filters)
		}
		item.IsFiltered = isFiltered
		item.FilterReason = filterReason
		filtered = append(filtered, item)
	}

	return filtered
}

func (f *Filterer) applyPatterns(item Item, fc *Context) (bool, string) {
	if pat := MatchAny(fc.SkipTitlePats, item.Title); pat != nil {
		return true, fmt.Sprintf("Skipping title: matches skip_title_pats '%s'", pat)
	}
	if pat := MatchAny(fc.SkipLinkPats, item.Link); pat != nil {
		return true, fmt.Sprintf("Skipping link: matches skip_link_pats '%s'", pat)
	}
	if strings.HasSuffix(strings.ToLower(item.Link), ".mp3") {
		return true, "Filtering out mp3 link"
	}
	return false, ""
}

func (f *Filterer) applyFilters(item Item, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(item, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(item Item, field string) string {
	switch field {
	case "title":
		return item.Title
	case "content":
		return item.Content
	case "author":
		return item.Author
	case "link":
		return item.Link
	case "categories":
		return strings.Join(item.Categories, " ")
	default:
		return ""
	}
}
