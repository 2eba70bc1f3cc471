// Package export renders a built task graph into external formats: Graphviz
// DOT for visual inspection, Cypher statements for graph-database loading,
// and a msgpack snapshot for programmatic reuse.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeremyadavis/turbo/pkg/graph"
	"github.com/jeremyadavis/turbo/pkg/multiplicity"
)

// edgeStyles maps a multiplicity class to its DOT edge attributes. Solid
// edges always fire exactly once, dashed edges may be skipped, bold edges
// may repeat.
var edgeStyles = map[multiplicity.Multiplicity]string{
	multiplicity.ExactlyOne: "solid",
	multiplicity.ZeroOrOne:  "dashed",
	multiplicity.ZeroOrMany: "bold",
}

// WriteDOT renders the graph as a Graphviz digraph. Task nodes are drawn as
// ellipses labeled with their function name, external callers as gray boxes.
// Edges carry the multiplicity class as a label and an "approx" marker when
// any merged site was classified conservatively.
func WriteDOT(w io.Writer, view graph.View) error {
	var b strings.Builder
	b.WriteString("digraph tasks {\n")
	b.WriteString("\trankdir=LR;\n")
	b.WriteString("\tnode [fontname=\"Helvetica\"];\n\n")

	for _, node := range view.Nodes() {
		attrs := []string{fmt.Sprintf("label=%q", nodeLabel(node))}
		switch node.Kind {
		case graph.ExternalNode:
			attrs = append(attrs, "shape=box", "style=filled", "fillcolor=lightgray")
		default:
			attrs = append(attrs, "shape=ellipse")
			if node.Partial {
				attrs = append(attrs, "style=dotted")
			}
		}
		fmt.Fprintf(&b, "\t%q [%s];\n", node.ID, strings.Join(attrs, ", "))
	}

	b.WriteString("\n")
	for _, edge := range view.Edges() {
		label := string(edge.Multiplicity)
		if edge.Approximate {
			label += " (approx)"
		}
		style := edgeStyles[edge.Multiplicity]
		if style == "" {
			style = "solid"
		}
		fmt.Fprintf(&b, "\t%q -> %q [label=%q, style=%s];\n",
			edge.Caller, edge.Callee, label, style)
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func nodeLabel(node graph.Node) string {
	if node.Kind == graph.ExternalNode {
		return node.Name + " (external)"
	}
	if len(node.Tags) > 0 {
		return node.Name + "\n[" + strings.Join(node.Tags, ", ") + "]"
	}
	return node.Name
}
