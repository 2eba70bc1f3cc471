// Package graph builds the task call graph: it orchestrates task discovery,
// oracle queries, control-context extraction, and multiplicity
// classification into one immutable graph snapshot.
package graph

import (
	"sort"

	"github.com/jeremyadavis/turbo/pkg/multiplicity"
)

// NodeKind distinguishes task nodes from external callers.
type NodeKind string

const (
	// TaskNode is a task-annotated function discovered by the registry.
	TaskNode NodeKind = "task"
	// ExternalNode is a non-task function that calls into a task. External
	// callers sit on the boundary of the graph: recorded, never expanded.
	ExternalNode NodeKind = "external"
)

// Node is one vertex of the call graph.
type Node struct {
	// ID is the canonical identifier: a task symbol ID, or
	// "external:file#name" for non-task callers.
	ID   string   `json:"id" msgpack:"id"`
	Kind NodeKind `json:"kind" msgpack:"kind"`
	Name string   `json:"name" msgpack:"name"`
	File string   `json:"file" msgpack:"file"`
	// Tags carries the task annotation's arguments, when any.
	Tags []string `json:"tags,omitempty" msgpack:"tags,omitempty"`
	// Partial marks a task whose oracle answers were incomplete: the node is
	// present but carries no outgoing-edge guarantee.
	Partial bool `json:"partial,omitempty" msgpack:"partial,omitempty"`
}

// Edge is one merged call relationship. All raw call sites between the same
// caller and callee collapse into a single edge whose multiplicity is the
// join of the per-site classes.
type Edge struct {
	Caller       string                    `json:"caller" msgpack:"caller"`
	Callee       string                    `json:"callee" msgpack:"callee"`
	Multiplicity multiplicity.Multiplicity `json:"multiplicity" msgpack:"multiplicity"`
	// Sites is the number of distinct call sites merged into this edge.
	Sites int `json:"sites" msgpack:"sites"`
	// Approximate marks an edge where at least one site's control context
	// could not be resolved and the most conservative class was assumed.
	Approximate bool `json:"approximate,omitempty" msgpack:"approximate,omitempty"`
}

// View is the read-only traversal interface export adapters consume.
type View interface {
	// Nodes lists every vertex, ordered by ID.
	Nodes() []Node
	// Edges lists every merged edge, ordered by caller then callee.
	Edges() []Edge
	// Node resolves a vertex by ID.
	Node(id string) (Node, bool)
	// IsTask reports whether the vertex is a task (vs. an external caller).
	IsTask(id string) bool
}

// Graph is the immutable analysis result. It stores flat node and edge
// collections; neighborhood lookups go through the index rather than
// through object references.
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int
}

// New builds a Graph from already-merged nodes and edges, for callers that
// reload a previously exported analysis rather than running the pipeline.
func New(nodes []Node, edges []Edge) *Graph {
	return newGraph(nodes, edges)
}

func newGraph(nodes []Node, edges []Edge) *Graph {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	return &Graph{nodes: nodes, edges: edges, index: index}
}

// Nodes returns all vertices ordered by ID. The returned slice is shared;
// callers must not mutate it.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns all merged edges ordered by caller then callee.
func (g *Graph) Edges() []Edge { return g.edges }

// Node resolves a vertex by ID.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// IsTask reports whether the vertex exists and is a task node.
func (g *Graph) IsTask(id string) bool {
	n, ok := g.Node(id)
	return ok && n.Kind == TaskNode
}

// Outgoing returns the edges leaving the given caller.
func (g *Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Caller == id {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges arriving at the given callee.
func (g *Graph) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range g.edges {
		if e.Callee == id {
			in = append(in, e)
		}
	}
	return in
}
