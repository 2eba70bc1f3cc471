package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyadavis/turbo/internal/scanner"
	"github.com/jeremyadavis/turbo/pkg/multiplicity"
	"github.com/jeremyadavis/turbo/pkg/oracle"
	"github.com/jeremyadavis/turbo/pkg/registry"
	"github.com/jeremyadavis/turbo/pkg/types"
)

// fakeOracle answers by function name from canned references.
type fakeOracle struct {
	refs   map[string][]oracle.RawReference
	errs   map[string]error
	closed bool
}

func (f *fakeOracle) FindCallSites(ctx context.Context, sym registry.Symbol) ([]oracle.RawReference, error) {
	if err := f.errs[sym.Name]; err != nil {
		return nil, err
	}
	return f.refs[sym.Name], nil
}

func (f *fakeOracle) Close() error {
	f.closed = true
	return nil
}

const fixtureSource = `#[turbo_tasks::function]
fn read_config() {}

#[turbo_tasks::function]
fn link() {}

#[turbo_tasks::function]
fn compile() {
    read_config();
    link();
    link();
}

#[turbo_tasks::function]
fn watch(paths: Vec<String>) {
    for p in paths {
        compile();
    }
}

fn main() {
    if std::env::args().len() > 1 {
        compile();
    }
}
`

// fixture holds one parsed source unit plus position lookup by marker.
type fixture struct {
	unit scanner.FileInfo
	src  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	full := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(full, []byte(fixtureSource), 0644))
	return &fixture{
		unit: scanner.FileInfo{
			Path:     "lib.rs",
			FullPath: full,
			Language: types.Rust,
			Size:     int64(len(fixtureSource)),
		},
		src: fixtureSource,
	}
}

// callAt returns a reference at the nth occurrence (1-based) of marker.
func (f *fixture) callAt(t *testing.T, marker string, n int, enclosing string) oracle.RawReference {
	t.Helper()
	idx := -1
	rest := f.src
	offset := 0
	for i := 0; i < n; i++ {
		j := strings.Index(rest, marker)
		require.GreaterOrEqual(t, j, 0, "occurrence %d of %q not found", n, marker)
		idx = offset + j
		offset = idx + len(marker)
		rest = f.src[offset:]
	}
	before := f.src[:idx]
	row := strings.Count(before, "\n")
	col := idx
	if last := strings.LastIndex(before, "\n"); last >= 0 {
		col = idx - last - 1
	}
	return oracle.RawReference{
		Call:          types.Location{File: f.unit.FullPath, Point: types.Point{Row: uint32(row), Column: uint32(col)}},
		EnclosingName: enclosing,
		EnclosingFile: f.unit.FullPath,
	}
}

func (f *fixture) taskID(name string) string {
	// Mirrors registry ID construction: file#name:line with the line of the
	// name identifier.
	lines := strings.Split(f.src, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "fn "+name) || strings.HasPrefix(line, "pub fn "+name) {
			return fmt.Sprintf("%s#%s:%d", f.unit.FullPath, name, i+1)
		}
	}
	return ""
}

func defaultOracle(t *testing.T, f *fixture) *fakeOracle {
	return &fakeOracle{
		refs: map[string][]oracle.RawReference{
			"read_config": {f.callAt(t, "read_config();", 1, "compile")},
			"link": {
				f.callAt(t, "link();", 1, "compile"),
				f.callAt(t, "link();", 2, "compile"),
			},
			"compile": {
				f.callAt(t, "compile();", 1, "watch"),
				f.callAt(t, "compile();", 2, "main"),
			},
		},
	}
}

func findEdge(t *testing.T, g *Graph, caller, callee string) Edge {
	t.Helper()
	for _, e := range g.Edges() {
		if e.Caller == caller && e.Callee == callee {
			return e
		}
	}
	t.Fatalf("edge %s -> %s not found in %v", caller, callee, g.Edges())
	return Edge{}
}

func TestBuilder_ClassifiesAndMerges(t *testing.T) {
	f := newFixture(t)
	fake := defaultOracle(t, f)

	b := NewBuilder(Options{Oracle: fake})
	g, report, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.NoError(t, err)
	assert.Equal(t, StateMerged, b.State())

	// An unconditional single call is ExactlyOne.
	e := findEdge(t, g, f.taskID("compile"), f.taskID("read_config"))
	assert.Equal(t, multiplicity.ExactlyOne, e.Multiplicity)
	assert.Equal(t, 1, e.Sites)

	// Two unconditional sites merge to ZeroOrMany.
	e = findEdge(t, g, f.taskID("compile"), f.taskID("link"))
	assert.Equal(t, multiplicity.ZeroOrMany, e.Multiplicity)
	assert.Equal(t, 2, e.Sites)

	// A call inside a loop is ZeroOrMany.
	e = findEdge(t, g, f.taskID("watch"), f.taskID("compile"))
	assert.Equal(t, multiplicity.ZeroOrMany, e.Multiplicity)

	// A conditional call from a non-task lands on an external node.
	externalID := fmt.Sprintf("external:%s#main", f.unit.FullPath)
	e = findEdge(t, g, externalID, f.taskID("compile"))
	assert.Equal(t, multiplicity.ZeroOrOne, e.Multiplicity)
	node, ok := g.Node(externalID)
	require.True(t, ok)
	assert.Equal(t, ExternalNode, node.Kind)
	assert.False(t, g.IsTask(externalID))

	// Tasks with no callers are still nodes.
	_, ok = g.Node(f.taskID("watch"))
	assert.True(t, ok)

	assert.Equal(t, 4, report.Tasks)
	assert.Equal(t, 1, report.Externals)
	assert.Equal(t, 5, report.SiteCount)
	assert.Equal(t, 4, report.EdgeCount)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.ApproximateSites)
}

func TestBuilder_TimeoutMarksPartial(t *testing.T) {
	f := newFixture(t)
	fake := defaultOracle(t, f)
	fake.errs = map[string]error{
		"compile": &oracle.TimeoutError{Symbol: "compile", Err: context.DeadlineExceeded},
	}

	b := NewBuilder(Options{Oracle: fake})
	g, report, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.NoError(t, err)

	require.Len(t, report.PartialSymbols, 1)
	assert.Equal(t, f.taskID("compile"), report.PartialSymbols[0].ID)

	// The partial task is still a node, flagged, and keeps edges discovered
	// through other symbols' answers.
	node, ok := g.Node(f.taskID("compile"))
	require.True(t, ok)
	assert.True(t, node.Partial)
	e := findEdge(t, g, f.taskID("compile"), f.taskID("read_config"))
	assert.Equal(t, multiplicity.ExactlyOne, e.Multiplicity)
}

func TestBuilder_UnavailableAborts(t *testing.T) {
	f := newFixture(t)
	fake := defaultOracle(t, f)
	fake.errs = map[string]error{
		"link": fmt.Errorf("%w: connection refused", oracle.ErrUnavailable),
	}

	b := NewBuilder(Options{Oracle: fake})
	_, _, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrUnavailable))
}

func TestBuilder_UnresolvedContextIsApproximate(t *testing.T) {
	f := newFixture(t)
	fake := defaultOracle(t, f)
	// A reference into a file that does not exist cannot be classified.
	fake.refs["watch"] = []oracle.RawReference{{
		Call:          types.Location{File: filepath.Join(t.TempDir(), "gone.rs"), Point: types.Point{}},
		EnclosingName: "phantom",
		EnclosingFile: "gone.rs",
	}}

	b := NewBuilder(Options{Oracle: fake})
	g, report, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ApproximateSites)
	e := findEdge(t, g, "external:gone.rs#phantom", f.taskID("watch"))
	assert.Equal(t, multiplicity.ZeroOrMany, e.Multiplicity)
	assert.True(t, e.Approximate)
}

func TestBuilder_Deterministic(t *testing.T) {
	f := newFixture(t)

	run := func() *Graph {
		b := NewBuilder(Options{Oracle: defaultOracle(t, f), Concurrency: 3})
		g, _, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
		require.NoError(t, err)
		return g
	}

	first := run()
	second := run()
	assert.Equal(t, first.Nodes(), second.Nodes())
	assert.Equal(t, first.Edges(), second.Edges())
}

func TestBuilder_RunsOnce(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Options{Oracle: defaultOracle(t, f)})

	_, _, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.NoError(t, err)

	_, _, err = b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.Error(t, err)
}

func TestGraph_Neighborhoods(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Options{Oracle: defaultOracle(t, f)})
	g, _, err := b.Run(context.Background(), []scanner.FileInfo{f.unit})
	require.NoError(t, err)

	out := g.Outgoing(f.taskID("compile"))
	assert.Len(t, out, 2)

	in := g.Incoming(f.taskID("compile"))
	assert.Len(t, in, 2)

	assert.Empty(t, g.Outgoing(f.taskID("read_config")))
}
