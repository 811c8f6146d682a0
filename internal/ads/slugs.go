package ads

import (
	"net/url"
	"regexp"
	"strings"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// Normalize reduces any inbound URL or path to the canonical server-relative
// slug: host discarded, leading slash ensured, trailing .json stripped.
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Path
		}
	}
	s = strings.TrimSuffix(s, ".json")
	s = strings.TrimRight(s, "/")
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

// JSON appends the .json suffix the typed endpoints require.
func JSON(slug string) string {
	return Normalize(slug) + ".json"
}

// AdIDFrom extracts the numeric ad id from the slug's trailing digit group.
func AdIDFrom(slug string) (int, bool) {
	m := trailingDigits.FindString(Normalize(slug))
	if m == "" {
		return 0, false
	}
	n := 0
	for _, r := range m {
		n = n*10 + int(r-'0')
	}
	return n, true
}
