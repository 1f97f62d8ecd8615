package engine

import (
	"net/url"
	"strings"
)

// SkipList is an ordered set of script path suffixes that must never be
// fetched. It is immutable once built.
type SkipList struct {
	suffixes []string
}

// NewSkipList builds a SkipList; blank entries are dropped.
func NewSkipList(entries ...string) SkipList {
	s := SkipList{}
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			s.suffixes = append(s.suffixes, e)
		}
	}
	return s
}

// Match reports whether u's path ends with any entry.
func (s SkipList) Match(u *url.URL) bool {
	if u == nil {
		return false
	}
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(u.Path, suffix) {
			return true
		}
	}
	return false
}

// Entries returns a copy of the suffixes.
func (s SkipList) Entries() []string {
	return append([]string(nil), s.suffixes...)
}
