package studiocms

import (
	"net/url"
	"path"
	"strings"
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// FilterEmpty trims every value and drops the ones left empty. Order and
// duplicates are kept.
func FilterEmpty(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitList turns a comma-separated string into a list with FilterEmpty
// semantics, so "a, b,,c" and ["a", " b", "", "c"] normalize identically.
func SplitList(s string) []string {
	return FilterEmpty(strings.Split(s, ","))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
