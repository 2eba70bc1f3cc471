package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/internal/scanner"
	"github.com/jeremyadavis/turbo/pkg/types"
)

const (
	rustAnnotation = "turbo_tasks::function"
	goAnnotation   = "//turbo:task"
)

// Catalog is the immutable result of one discovery pass: every task symbol
// found across the scanned source units, deduplicated by canonical location.
type Catalog struct {
	symbols []Symbol
	byID    map[string]Symbol
	byFile  map[string][]Symbol
}

// Symbols returns all discovered symbols ordered by file then line.
func (c *Catalog) Symbols() []Symbol {
	return c.symbols
}

// Len returns the number of discovered symbols.
func (c *Catalog) Len() int { return len(c.symbols) }

// ByID looks a symbol up by its canonical identifier.
func (c *Catalog) ByID(id string) (Symbol, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Enclosing finds the task symbol in file whose declaration contains p, if
// any. Used to decide whether a call site's enclosing function is itself a
// task.
func (c *Catalog) Enclosing(file string, p types.Point) (Symbol, bool) {
	for _, s := range c.byFile[file] {
		if s.BodyRange.Contains(p) {
			return s, true
		}
	}
	return Symbol{}, false
}

// Discover parses every source unit and catalogs its task-annotated
// functions. Units that fail to parse are skipped and reported in the
// returned error slice; discovery itself never aborts the run.
func Discover(files []scanner.FileInfo, logger *log.Logger) (*Catalog, []*DiscoveryError) {
	cat := &Catalog{
		byID:   make(map[string]Symbol),
		byFile: make(map[string][]Symbol),
	}
	var errs []*DiscoveryError

	for _, file := range files {
		content, err := os.ReadFile(file.FullPath)
		if err != nil {
			errs = append(errs, &DiscoveryError{Unit: file.FullPath, Err: err})
			continue
		}

		symbols, err := discoverInUnit(content, file.FullPath, file.Language)
		if err != nil {
			errs = append(errs, &DiscoveryError{Unit: file.FullPath, Err: err})
			continue
		}

		// Cross-check against a raw text scan: when the parse-based walk and
		// the textual heuristic disagree, the unit likely contains annotation
		// forms the walk does not recognize.
		if hits := annotationHits(content, file.Language); hits != len(symbols) {
			logger.Warn("annotation count mismatch",
				"unit", file.FullPath, "text_hits", hits, "parsed", len(symbols))
		}

		for _, s := range symbols {
			if _, seen := cat.byID[s.ID()]; seen {
				continue
			}
			cat.byID[s.ID()] = s
			cat.byFile[s.File] = append(cat.byFile[s.File], s)
			cat.symbols = append(cat.symbols, s)
		}
	}

	sort.Slice(cat.symbols, func(i, j int) bool {
		a, b := cat.symbols[i], cat.symbols[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Point.Row < b.Point.Row
	})

	return cat, errs
}

// discoverInUnit parses one source unit and returns its task symbols.
func discoverInUnit(content []byte, path string, lang types.Language) ([]Symbol, error) {
	parser := sitter.NewParser()
	switch lang {
	case types.Go:
		parser.SetLanguage(golang.GetLanguage())
	case types.Rust:
		parser.SetLanguage(rust.GetLanguage())
	default:
		return nil, fmt.Errorf("unsupported language %q", lang)
	}

	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, fmt.Errorf("parsing failed")
	}
	defer tree.Close()

	var symbols []Symbol
	walk(tree.RootNode(), func(node *sitter.Node) {
		annotated, tags := matchAnnotation(node, content, lang)
		if !annotated {
			return
		}
		fn := annotatedFunction(node, lang)
		if fn == nil {
			return
		}
		name := fn.ChildByFieldName("name")
		if name == nil {
			return
		}
		symbols = append(symbols, Symbol{
			Name:  name.Content(content),
			File:  path,
			Point: types.Point{Row: name.StartPoint().Row, Column: name.StartPoint().Column},
			SelectionRange: types.Range{
				Start: types.Point{Row: name.StartPoint().Row, Column: name.StartPoint().Column},
				End:   types.Point{Row: name.EndPoint().Row, Column: name.EndPoint().Column},
			},
			BodyRange: types.Range{
				Start: types.Point{Row: fn.StartPoint().Row, Column: fn.StartPoint().Column},
				End:   types.Point{Row: fn.EndPoint().Row, Column: fn.EndPoint().Column},
			},
			Language: lang,
			Tags:     tags,
		})
	})

	return symbols, nil
}

// walk visits every named node in the tree.
func walk(node *sitter.Node, visit func(*sitter.Node)) {
	if node == nil {
		return
	}
	visit(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), visit)
	}
}

// matchAnnotation reports whether node is a task annotation and extracts its
// tag arguments.
func matchAnnotation(node *sitter.Node, content []byte, lang types.Language) (bool, []string) {
	switch lang {
	case types.Rust:
		if node.Type() != "attribute_item" {
			return false, nil
		}
		text := node.Content(content)
		if !strings.Contains(text, "turbo_tasks") || !strings.Contains(text, "function") {
			return false, nil
		}
		return true, parseAttributeTags(text)
	case types.Go:
		if node.Type() != "comment" {
			return false, nil
		}
		text := strings.TrimSpace(node.Content(content))
		if !strings.HasPrefix(text, goAnnotation) {
			return false, nil
		}
		rest := strings.TrimPrefix(text, goAnnotation)
		if rest != "" && !strings.HasPrefix(rest, " ") {
			// e.g. //turbo:taskfoo is not an annotation
			return false, nil
		}
		return true, strings.Fields(rest)
	}
	return false, nil
}

// parseAttributeTags extracts the identifier arguments of the annotation,
// e.g. fs and network from #[turbo_tasks::function(fs, network)].
func parseAttributeTags(attr string) []string {
	open := strings.Index(attr, "(")
	end := strings.LastIndex(attr, ")")
	if open < 0 || end < open {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(attr[open+1:end], ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// annotatedFunction returns the function declaration the annotation applies
// to: the next named sibling, skipping further annotations and comments.
func annotatedFunction(annotation *sitter.Node, lang types.Language) *sitter.Node {
	fnTypes := map[string]bool{"function_item": true}
	if lang == types.Go {
		fnTypes = map[string]bool{
			"function_declaration": true,
			"method_declaration":   true,
		}
	}

	for sib := annotation.NextNamedSibling(); sib != nil; sib = sib.NextNamedSibling() {
		t := sib.Type()
		if fnTypes[t] {
			return sib
		}
		if t == "attribute_item" || t == "comment" || t == "line_comment" || t == "block_comment" {
			continue
		}
		return nil
	}
	return nil
}

// annotationHits counts lines that textually carry the task annotation.
func annotationHits(content []byte, lang types.Language) int {
	marker := rustAnnotation
	if lang == types.Go {
		marker = goAnnotation
	}
	hits := 0
	for _, line := range strings.Split(string(content), "\n") {
		if strings.Contains(line, marker) {
			hits++
		}
	}
	return hits
}
