package scanner

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnorePattern is a single gitignore-style pattern from a .taskgraphignore
// file.
type IgnorePattern struct {
	pattern   string
	negation  bool
	directory bool
	anchored  bool
}

// ParseIgnorePattern parses one gitignore-style pattern line.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{}

	if strings.HasPrefix(pattern, "!") {
		p.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.directory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.anchored = true
		pattern = pattern[1:]
	}

	p.pattern = pattern
	return p
}

// IsNegation reports whether this pattern re-includes matched paths.
func (p IgnorePattern) IsNegation() bool {
	return p.negation
}

// Match reports whether relPath (slash-separated, relative to the ignore
// file's directory) matches the pattern.
func (p IgnorePattern) Match(relPath string) bool {
	pattern := p.pattern
	if p.directory {
		// A directory pattern matches everything underneath it.
		pattern += "/**"
	}
	if !p.anchored && !strings.Contains(p.pattern, "/") {
		// Unanchored single-segment patterns match at any depth.
		pattern = "**/" + pattern
	}

	if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
		return true
	}
	// A bare directory name also matches the directory itself.
	if p.directory {
		if ok, err := doublestar.Match(strings.TrimSuffix(pattern, "/**"), relPath); err == nil && ok {
			return true
		}
	}
	return false
}
