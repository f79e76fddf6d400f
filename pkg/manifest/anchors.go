package manifest

import (
	"regexp"
	"strings"
	"sync"
)

// ListAnchors locates list literals in manifest text. The default
// implementation is textual; a structural parser can replace it.
type ListAnchors interface {
	// FindListAnchor returns the offset just past the opening bracket of the
	// list bound to key, scanning across line boundaries.
	FindListAnchor(text, key string) (int, bool)
	// ListEntries returns the quoted string literals of the list bound to key.
	ListEntries(text, key string) []string
}

// TextAnchors matches `'key' : [` with either quote style.
type TextAnchors struct{}

var (
	anchorMu    sync.Mutex
	anchorCache = map[string]*regexp.Regexp{}
)

func anchorRe(key string) *regexp.Regexp {
	anchorMu.Lock()
	defer anchorMu.Unlock()
	if re, ok := anchorCache[key]; ok {
		return re
	}
	q := regexp.QuoteMeta(key)
	re := regexp.MustCompile(`(?:'` + q + `'|"` + q + `")\s*:\s*\[`)
	anchorCache[key] = re
	return re
}

// FindListAnchor implements ListAnchors.
func (TextAnchors) FindListAnchor(text, key string) (int, bool) {
	loc := anchorRe(key).FindStringIndex(text)
	if loc == nil {
		return 0, false
	}
	return loc[1], true
}

// ListEntries implements ListAnchors. The body ends at the first closing
// bracket outside a string literal or comment; an unterminated list yields nothing.
func (a TextAnchors) ListEntries(text, key string) []string {
	start, ok := a.FindListAnchor(text, key)
	if !ok {
		return nil
	}

	var entries []string
	for i := start; i < len(text); i++ {
		switch c := text[i]; c {
		case '\'', '"':
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				return nil
			}
			if lit := text[i+1 : i+1+end]; lit != "" && !strings.Contains(lit, "\n") {
				entries = append(entries, lit)
			}
			i += end + 1
		case '#':
			nl := strings.IndexByte(text[i:], '\n')
			if nl < 0 {
				return nil
			}
			i += nl
		case ']':
			return entries
		}
	}
	return nil
}
