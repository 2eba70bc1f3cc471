// Package types defines the core data structures shared across the analyzer:
// source locations, ranges, and supported languages.
package types

import (
	"fmt"
	"strings"
)

// Language identifies a supported source language.
type Language string

const (
	// Rust sources, where tasks are marked with a #[turbo_tasks::function] attribute.
	Rust Language = "rust"
	// Go sources, where tasks are marked with a //turbo:task directive comment.
	Go Language = "go"
)

// LanguageForPath returns the language for a file path based on its extension,
// or false if the file is not an analyzable source unit.
func LanguageForPath(path string) (Language, bool) {
	switch {
	case strings.HasSuffix(path, ".rs"):
		return Rust, true
	case strings.HasSuffix(path, ".go"):
		return Go, true
	}
	return "", false
}

// Point is a zero-based position within a file (row, column), matching
// the coordinates used by tree-sitter and by LSP.
type Point struct {
	Row    uint32 `json:"row"`
	Column uint32 `json:"column"`
}

// Range is a span between two points, inclusive of its end point.
type Range struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Contains reports whether p falls within the range.
func (r Range) Contains(p Point) bool {
	if p.Row < r.Start.Row || p.Row > r.End.Row {
		return false
	}
	if p.Row == r.Start.Row && p.Column < r.Start.Column {
		return false
	}
	if p.Row == r.End.Row && p.Column > r.End.Column {
		return false
	}
	return true
}

// Location is a position within a named file.
type Location struct {
	File  string `json:"file"`
	Point Point  `json:"point"`
}

// String renders the location with a one-based line number for display.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Point.Row+1, l.Point.Column+1)
}
