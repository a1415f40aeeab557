package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns keep the contact pass off recruiting, news and
// document pages, which rarely carry the head-office phone.
var defaultExcludePatterns = []string{
	"/recruit/*",
	"/saiyo/*",
	"/careers/*",
	"/blog/*",
	"/news/*",
	"/topics/*",
	"/en/*",
	"/*.pdf",
}

// PathMatcher filters links by glob-style path patterns. "/blog/*" also
// matches deeper paths such as "/blog/2024/01/post".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher. Nil or empty patterns select the
// defaults.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns, lower-cased.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any pattern. Unparseable URLs are
// excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

// Resolve turns href into an absolute URL on base's host. It returns false
// for other hosts, non-http schemes, fragments-only links and excluded
// paths.
func (m *PathMatcher) Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if !sameSite(abs.Host, base.Host) {
		return "", false
	}
	abs.Fragment = ""
	s := abs.String()
	if m.IsExcluded(s) {
		return "", false
	}
	return s, true
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b
}

// matchSegmented tries an exact path.Match, then for "/dir/*" patterns a
// prefix match on the directory.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
