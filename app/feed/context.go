package feed

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// skipNodePattern matches `tag` or `tag attr="regex"`.
var skipNodePattern = regexp.MustCompile(`^\s*([a-zA-Z][a-zA-Z0-9]*)\s*(?:([a-zA-Z_:-][a-zA-Z0-9_:.-]*)\s*=\s*['"](.*)['"])?\s*$`)

// NodeSpec selects elements to delete: every Tag element whose Attr value
// matches Value. A nil Value selects every Tag element.
type NodeSpec struct {
	Tag   string
	Attr  string
	Value *regexp.Regexp
}

// Context is the resolved, read-only view of one feed's options. It is
// built once per feed and handed to every component working on that feed.
type Context struct {
	Name      string
	URL       string
	Settings  ConfigSettings
	Filters   []ConfigFilter
	UserAgent string

	Timeout      time.Duration
	ImageTimeout time.Duration

	SkipLinkPats         []*regexp.Regexp
	SkipTitlePats        []*regexp.Regexp
	SkipContentPats      []*regexp.Regexp
	IndexSkipContentPats []*regexp.Regexp
	PageStart            []*regexp.Regexp
	PageEnd              []*regexp.Regexp
	SkipPats             []*regexp.Regexp
	SinglePagePats       []*regexp.Regexp
	MultipagePat         *regexp.Regexp
	SkipNodes            []NodeSpec
}

// Defaults carries the process-wide fallbacks a feed may override.
type Defaults struct {
	UserAgent string
	SaveDays  int
}

func NewContext(feedConfig *Config, defaults Defaults) (*Context, error) {
	settings := feedConfig.Settings

	fc := &Context{
		Name:         feedConfig.Name,
		URL:          feedConfig.URL,
		Settings:     settings,
		Filters:      feedConfig.Filters,
		UserAgent:    defaults.UserAgent,
		Timeout:      time.Duration(settings.Timeout) * time.Second,
		ImageTimeout: time.Duration(settings.ImageTimeout) * time.Second,
	}
	if settings.UserAgent != "" {
		fc.UserAgent = settings.UserAgent
	}
	if fc.Settings.SaveDays == 0 {
		fc.Settings.SaveDays = defaults.SaveDays
	}

	var err error
	compile := func(name string, pats []string, flags string) []*regexp.Regexp {
		if err != nil {
			return nil
		}
		var res []*regexp.Regexp
		res, err = compilePatterns(name, pats, flags)
		return res
	}

	fc.SkipLinkPats = compile("skip_link_pats", settings.SkipLinkPats, "")
	fc.SkipTitlePats = compile("skip_title_pats", settings.SkipTitlePats, "")
	fc.SkipContentPats = compile("skip_content_pats", settings.SkipContentPats, "(?s)")
	fc.IndexSkipContentPats = compile("index_skip_content_pats", settings.IndexSkipContentPats, "(?s)")
	fc.PageStart = compile("page_start", settings.PageStart, "(?is)")
	fc.PageEnd = compile("page_end", settings.PageEnd, "(?is)")
	fc.SkipPats = compile("skip_pats", settings.SkipPats, "(?s)")
	fc.SinglePagePats = compile("single_page_pats", settings.SinglePagePats, "")
	if err != nil {
		return nil, err
	}

	if settings.MultipagePat != "" {
		fc.MultipagePat, err = regexp.Compile(settings.MultipagePat)
		if err != nil {
			return nil, fmt.Errorf("invalid multipage_pat %q: %w", settings.MultipagePat, err)
		}
	}

	for _, spec := range settings.SkipNodes {
		node, err := ParseNodeSpec(spec)
		if err != nil {
			return nil, err
		}
		fc.SkipNodes = append(fc.SkipNodes, node)
	}

	return fc, nil
}

// ParseNodeSpec parses a skip_nodes entry such as `div class="sticky-box"`.
func ParseNodeSpec(spec string) (NodeSpec, error) {
	m := skipNodePattern.FindStringSubmatch(spec)
	if m == nil {
		return NodeSpec{}, fmt.Errorf("invalid skip_nodes entry %q", spec)
	}

	node := NodeSpec{Tag: strings.ToLower(m[1])}
	if m[2] != "" {
		value, err := regexp.Compile(m[3])
		if err != nil {
			return NodeSpec{}, fmt.Errorf("invalid skip_nodes pattern %q: %w", m[3], err)
		}
		node.Attr = strings.ToLower(m[2])
		node.Value = value
	}
	return node, nil
}

// SubstituteURL applies url_substitute to an item link.
func (c *Context) SubstituteURL(link string) string {
	if len(c.Settings.URLSubstitute) != 2 {
		return link
	}
	return strings.Replace(link, c.Settings.URLSubstitute[0], c.Settings.URLSubstitute[1], 1)
}

func MatchAny(pats []*regexp.Regexp, s string) *regexp.Regexp {
	for _, pat := range pats {
		if pat.MatchString(s) {
			return pat
		}
	}
	return nil
}

func compilePatterns(name string, pats []string, flags string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(pats))
	for _, pat := range pats {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		re, err := regexp.Compile(flags + pat)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", name, pat, err)
		}
		res = append(res, re)
	}
	return res, nil
}
