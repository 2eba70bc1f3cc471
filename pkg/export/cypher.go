package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeremyadavis/turbo/pkg/graph"
)

// nodeLabels maps a node kind to its Cypher label.
var nodeLabels = map[graph.NodeKind]string{
	graph.TaskNode:     "Task",
	graph.ExternalNode: "External",
}

// WriteCypher emits one MERGE statement per node and edge, suitable for
// piping into cypher-shell. Nodes are keyed by id, edges by caller and
// callee, so re-running the same export is idempotent. The run id is stamped
// onto every statement so separate analyses can coexist in one database.
func WriteCypher(w io.Writer, view graph.View, runID string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "// task graph export, run %s\n", runID)

	for _, node := range view.Nodes() {
		label := nodeLabels[node.Kind]
		if label == "" {
			label = "Task"
		}
		fmt.Fprintf(&b, "MERGE (n:%s {id: %s}) SET n.name = %s, n.file = %s, n.run = %s",
			label,
			cypherString(node.ID),
			cypherString(node.Name),
			cypherString(node.File),
			cypherString(runID))
		if len(node.Tags) > 0 {
			fmt.Fprintf(&b, ", n.tags = %s", cypherList(node.Tags))
		}
		if node.Partial {
			b.WriteString(", n.partial = true")
		}
		b.WriteString(";\n")
	}

	for _, edge := range view.Edges() {
		fmt.Fprintf(&b, "MATCH (a {id: %s}), (b {id: %s}) "+
			"MERGE (a)-[r:CALLS]->(b) "+
			"SET r.multiplicity = %s, r.sites = %d, r.approximate = %t, r.run = %s;\n",
			cypherString(edge.Caller),
			cypherString(edge.Callee),
			cypherString(string(edge.Multiplicity)),
			edge.Sites,
			edge.Approximate,
			cypherString(runID))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// cypherString quotes a value as a single-quoted Cypher string literal.
func cypherString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func cypherList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = cypherString(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
