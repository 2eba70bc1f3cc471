package control

import (
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/jeremyadavis/turbo/pkg/types"
)

// langSyntax defines, per language, which node types open a control frame
// and which terminate the outward walk.
type langSyntax struct {
	// boundaries end the walk: the enclosing function's top level.
	boundaries map[string]bool
	// loops open a LoopBody frame regardless of which field is crossed.
	loops map[string]bool
	// conditionals open a ConditionalArm frame, unless crossed through one
	// of their eager fields (see eagerFields).
	conditionals map[string]bool
	// closures open a ClosureBoundary frame.
	closures map[string]bool
	// eagerFields lists, per conditional node type, the fields evaluated
	// unconditionally before any branch is taken (conditions, scrutinees).
	// Crossing a conditional through such a field has no control effect.
	eagerFields map[string][]string
}

func syntaxByLanguage(lang types.Language) langSyntax {
	switch lang {
	case types.Go:
		return langSyntax{
			boundaries: map[string]bool{
				"function_declaration": true,
				"method_declaration":   true,
			},
			loops: map[string]bool{
				"for_statement": true,
			},
			conditionals: map[string]bool{
				"if_statement":       true,
				"expression_case":    true,
				"type_case":          true,
				"default_case":       true,
				"communication_case": true,
			},
			closures: map[string]bool{
				"func_literal": true,
			},
			eagerFields: map[string][]string{
				"if_statement": {"initializer", "condition"},
			},
		}
	default: // rust
		return langSyntax{
			boundaries: map[string]bool{
				"function_item": true,
			},
			loops: map[string]bool{
				"for_expression":   true,
				"while_expression": true,
				"loop_expression":  true,
			},
			conditionals: map[string]bool{
				"if_expression":     true,
				"else_clause":       true,
				"match_arm":         true,
				"if_let_expression": true,
			},
			closures: map[string]bool{
				"closure_expression": true,
			},
			eagerFields: map[string][]string{
				"if_expression":     {"condition"},
				"if_let_expression": {"value"},
			},
		}
	}
}

// Extractor derives control-context paths for call sites by re-parsing the
// enclosing file and walking the syntax tree outward from the reference.
// Extraction is pure: the same file contents and position always produce the
// same path.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// PathAtLocation reads the file named by loc and extracts the control context
// of the reference at its position.
func (e *Extractor) PathAtLocation(loc types.Location) (Path, error) {
	lang, ok := types.LanguageForPath(loc.File)
	if !ok {
		return nil, &UnresolvedContextError{Loc: loc, Reason: "unsupported source language"}
	}
	content, err := os.ReadFile(loc.File)
	if err != nil {
		return nil, &UnresolvedContextError{Loc: loc, Reason: err.Error()}
	}
	return e.PathAt(content, lang, loc)
}

// PathAt extracts the control context of the reference at the given position
// within content. Frames are returned innermost-first. Sequential nesting is
// not emitted: an empty path means the reference sits at the function's
// unconditional top level. Returns *UnresolvedContextError when the enclosing
// syntax cannot be resolved.
func (e *Extractor) PathAt(content []byte, lang types.Language, loc types.Location) (Path, error) {
	parser := sitter.NewParser()
	switch lang {
	case types.Go:
		parser.SetLanguage(golang.GetLanguage())
	default:
		parser.SetLanguage(rust.GetLanguage())
	}

	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, &UnresolvedContextError{Loc: loc, Reason: "parse failed"}
	}
	defer tree.Close()

	at := sitter.Point{Row: loc.Point.Row, Column: loc.Point.Column}
	node := tree.RootNode().NamedDescendantForPointRange(at, at)
	if node == nil {
		return nil, &UnresolvedContextError{Loc: loc, Reason: "no syntax node at position"}
	}

	syntax := syntaxByLanguage(lang)

	var path Path
	child := node
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if syntax.boundaries[parent.Type()] {
			return path, nil
		}
		if kind, ok := syntax.classify(parent, child); ok {
			path = append(path, Frame{
				Kind:     kind,
				NodeType: parent.Type(),
				Line:     int(parent.StartPoint().Row) + 1,
			})
		}
		child = parent
	}

	return nil, &UnresolvedContextError{Loc: loc, Reason: "no enclosing function"}
}

// classify determines the control effect of crossing from child out to
// parent. Returns false for crossings with no control effect.
func (s langSyntax) classify(parent, child *sitter.Node) (FrameKind, bool) {
	pt := parent.Type()
	switch {
	case s.loops[pt]:
		return LoopBody, true
	case s.conditionals[pt]:
		// A condition or scrutinee evaluates unconditionally; only the arms
		// are guarded.
		for _, field := range s.eagerFields[pt] {
			if f := parent.ChildByFieldName(field); f != nil && sameSpan(f, child) {
				return Sequential, false
			}
		}
		return ConditionalArm, true
	case s.closures[pt]:
		return ClosureBoundary, true
	}
	return Sequential, false
}

// sameSpan reports whether two nodes cover the same byte span. Used to test
// field identity on the outward walk, where the path node and the field node
// are the same syntax object.
func sameSpan(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}
