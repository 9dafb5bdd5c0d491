// Package plugin locates optional extension bundles. A SearchPath lists the
// directories and archives consulted, highest priority first; a Loader
// resolves an extension by name across it.
package plugin

import (
	"os"
	"strings"
)

// SearchPath is an ordered list of directories and bundle archives.
// It is a value type: Prepend returns a new list.
type SearchPath struct {
	entries []string
}

// NewSearchPath returns a search path holding entries in the given order
func NewSearchPath(entries ...string) SearchPath {
	return SearchPath{entries: append([]string(nil), entries...)}
}

// ParseSearchPath splits an os.PathListSeparator joined list
func ParseSearchPath(s string) SearchPath {
	var entries []string
	for _, e := range strings.Split(s, string(os.PathListSeparator)) {
		if e != "" {
			entries = append(entries, e)
		}
	}
	return SearchPath{entries: entries}
}

// Prepend returns a copy of s with p as its highest-priority entry
func (s SearchPath) Prepend(p string) SearchPath {
	entries := make([]string, 0, len(s.entries)+1)
	entries = append(entries, p)
	entries = append(entries, s.entries...)
	return SearchPath{entries: entries}
}

// Entries returns a copy of the entries, highest priority first
func (s SearchPath) Entries() []string {
	return append([]string(nil), s.entries...)
}

// Len returns the number of entries
func (s SearchPath) Len() int {
	return len(s.entries)
}

// Contains reports whether p is an entry
func (s SearchPath) Contains(p string) bool {
	for _, e := range s.entries {
		if e == p {
			return true
		}
	}
	return false
}

// Count returns how many times p appears
func (s SearchPath) Count(p string) int {
	n := 0
	for _, e := range s.entries {
		if e == p {
			n++
		}
	}
	return n
}

// String joins the entries with os.PathListSeparator
func (s SearchPath) String() string {
	return strings.Join(s.entries, string(os.PathListSeparator))
}

// MarshalYAML renders the entries as a list
func (s SearchPath) MarshalYAML() (interface{}, error) {
	return s.Entries(), nil
}
