package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/internal/scanner"
	"github.com/jeremyadavis/turbo/pkg/control"
	"github.com/jeremyadavis/turbo/pkg/multiplicity"
	"github.com/jeremyadavis/turbo/pkg/oracle"
	"github.com/jeremyadavis/turbo/pkg/registry"
)

// State names the builder's pipeline stage. Transitions are strictly
// ordered; no stage is skipped.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateDiscovering   State = "discovering"
	StateResolving     State = "resolving"
	StateClassifying   State = "classifying"
	StateMerged        State = "merged"
)

// Report accompanies the finished graph: everything the run skipped,
// retried out, or approximated, so exact edges stay distinguishable from
// best-effort ones.
type Report struct {
	RunID string `json:"run_id"`
	// SkippedUnits lists source units that failed to parse during discovery.
	SkippedUnits []SkippedUnit `json:"skipped_units,omitempty"`
	// PartialSymbols lists tasks whose oracle queries were not answered
	// within the retry budget. They appear in the graph without an
	// outgoing-edge guarantee.
	PartialSymbols []PartialSymbol `json:"partial_symbols,omitempty"`
	// ApproximateSites counts call sites classified conservatively because
	// their control context could not be resolved.
	ApproximateSites int `json:"approximate_sites"`

	Tasks     int           `json:"tasks"`
	Externals int           `json:"externals"`
	EdgeCount int           `json:"edges"`
	SiteCount int           `json:"call_sites"`
	Duration  time.Duration `json:"duration"`
}

// SkippedUnit records one source unit dropped during discovery.
type SkippedUnit struct {
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
}

// PartialSymbol records one task with incomplete oracle answers.
type PartialSymbol struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Builder runs the analysis pipeline once and produces an immutable Graph.
// Re-running over an unchanged snapshot with identical oracle answers yields
// an identical graph.
type Builder struct {
	oracle      oracle.Client
	extractor   *control.Extractor
	concurrency int
	logger      *log.Logger
	state       State
}

// Options configures a Builder.
type Options struct {
	// Oracle answers find-call-sites queries. Required.
	Oracle oracle.Client
	// Concurrency bounds the oracle query fan-out; it should respect the
	// oracle's advertised capacity. Defaults to 4.
	Concurrency int
	Logger      *log.Logger
}

// NewBuilder creates a Builder in the uninitialized state.
func NewBuilder(opts Options) *Builder {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		oracle:      opts.Oracle,
		extractor:   control.NewExtractor(),
		concurrency: concurrency,
		logger:      logger,
		state:       StateUninitialized,
	}
}

// State returns the builder's current pipeline stage.
func (b *Builder) State() State { return b.state }

// symbolResult carries one task's complete oracle answer (or its partial
// mark) from a query worker to the single reducer. A symbol's results are
// committed whole or not at all.
type symbolResult struct {
	sym     registry.Symbol
	refs    []oracle.RawReference
	partial string
}

// classifiedSite is one call site after extraction and folding.
type classifiedSite struct {
	callerID    string
	callerName  string
	callerFile  string
	calleeID    string
	class       multiplicity.Multiplicity
	approximate bool
}

// Run executes the full pipeline over the given source units:
// discovery, oracle resolution, classification, and merge. Only oracle
// unavailability aborts the run; per-unit, per-symbol, and per-site failures
// are absorbed at the smallest scope that preserves forward progress and
// surfaced through the Report.
func (b *Builder) Run(ctx context.Context, units []scanner.FileInfo) (*Graph, *Report, error) {
	if b.state != StateUninitialized {
		return nil, nil, fmt.Errorf("builder already ran (state %s)", b.state)
	}
	started := time.Now()
	report := &Report{RunID: uuid.NewString()}

	// Discovering.
	b.state = StateDiscovering
	catalog, discErrs := registry.Discover(units, b.logger)
	for _, de := range discErrs {
		b.logger.Warn("skipping source unit", "unit", de.Unit, "reason", de.Err)
		report.SkippedUnits = append(report.SkippedUnits, SkippedUnit{Unit: de.Unit, Reason: de.Err.Error()})
	}
	b.logger.Info("discovered tasks", "count", catalog.Len(), "units", len(units))

	// Resolving: concurrent oracle fan-out, single reducer.
	b.state = StateResolving
	resolved, partials, err := b.resolve(ctx, catalog)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range partials {
		report.PartialSymbols = append(report.PartialSymbols, p)
	}

	// Classifying: pure and synchronous.
	b.state = StateClassifying
	sites := b.classify(catalog, resolved, report)

	// Merged.
	g := b.merge(catalog, partials, sites)
	b.state = StateMerged

	report.SiteCount = len(sites)
	report.EdgeCount = len(g.Edges())
	for _, n := range g.Nodes() {
		if n.Kind == TaskNode {
			report.Tasks++
		} else {
			report.Externals++
		}
	}
	report.Duration = time.Since(started)

	return g, report, nil
}

// resolve queries the oracle once per task symbol, fanning out over a
// bounded worker pool. All results flow through this function's receive
// loop, the single serialized merge point of the pipeline. Per-symbol
// timeouts mark the symbol partial; unavailability aborts.
func (b *Builder) resolve(ctx context.Context, catalog *registry.Catalog) (map[string][]oracle.RawReference, []PartialSymbol, error) {
	results := make(chan symbolResult)
	done := make(chan struct{})

	resolved := make(map[string][]oracle.RawReference)
	var partials []PartialSymbol

	go func() {
		defer close(done)
		for r := range results {
			if r.partial != "" {
				partials = append(partials, PartialSymbol{ID: r.sym.ID(), Reason: r.partial})
				continue
			}
			resolved[r.sym.ID()] = r.refs
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, sym := range catalog.Symbols() {
		sym := sym
		g.Go(func() error {
			// Whole-run cancellation is cooperative, checked per symbol.
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			refs, err := b.oracle.FindCallSites(gctx, sym)
			if err != nil {
				if oracle.IsTimeout(err) {
					b.logger.Warn("oracle answer incomplete", "symbol", sym.ID(), "reason", err)
					results <- symbolResult{sym: sym, partial: err.Error()}
					return nil
				}
				return fmt.Errorf("resolving %s: %w", sym.ID(), err)
			}
			b.logger.Debug("resolved call sites", "symbol", sym.ID(), "references", len(refs))
			results <- symbolResult{sym: sym, refs: refs}
			return nil
		})
	}

	err := g.Wait()
	close(results)
	<-done

	if err != nil {
		return nil, nil, err
	}

	// Deterministic partial ordering regardless of worker completion order.
	sort.Slice(partials, func(i, j int) bool { return partials[i].ID < partials[j].ID })

	return resolved, partials, nil
}

// classify derives each reference's control context and folds it into a
// multiplicity class. Unresolvable contexts degrade to the most conservative
// class and are flagged approximate, never dropped.
func (b *Builder) classify(catalog *registry.Catalog, resolved map[string][]oracle.RawReference, report *Report) []classifiedSite {
	ids := make([]string, 0, len(resolved))
	for id := range resolved {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sites []classifiedSite
	for _, calleeID := range ids {
		for _, ref := range resolved[calleeID] {
			site := classifiedSite{calleeID: calleeID}

			path, err := b.extractor.PathAtLocation(ref.Call)
			switch {
			case err == nil:
				site.class = multiplicity.Fold(path)
			default:
				var unresolved *control.UnresolvedContextError
				if !errors.As(err, &unresolved) {
					// Extraction only fails with unresolved context, but be
					// conservative on anything unexpected as well.
					b.logger.Warn("unexpected extraction failure", "at", ref.Call, "err", err)
				} else {
					b.logger.Warn("control context unresolved", "at", unresolved.Loc, "reason", unresolved.Reason)
				}
				site.class = multiplicity.ZeroOrMany
				site.approximate = true
				report.ApproximateSites++
			}

			if task, ok := catalog.Enclosing(ref.Call.File, ref.Call.Point); ok {
				site.callerID = task.ID()
			} else {
				site.callerID = fmt.Sprintf("external:%s#%s", ref.EnclosingFile, ref.EnclosingName)
				site.callerName = ref.EnclosingName
				site.callerFile = ref.EnclosingFile
			}

			sites = append(sites, site)
		}
	}
	return sites
}

// merge groups classified sites by (caller, callee) and joins their classes
// into one edge each, then assembles the immutable snapshot. Every task is a
// node even with no edges; partial tasks are marked.
func (b *Builder) merge(catalog *registry.Catalog, partials []PartialSymbol, sites []classifiedSite) *Graph {
	partialIDs := make(map[string]bool, len(partials))
	for _, p := range partials {
		partialIDs[p.ID] = true
	}

	nodes := make(map[string]Node)
	for _, sym := range catalog.Symbols() {
		nodes[sym.ID()] = Node{
			ID:      sym.ID(),
			Kind:    TaskNode,
			Name:    sym.Name,
			File:    sym.File,
			Tags:    sym.Tags,
			Partial: partialIDs[sym.ID()],
		}
	}

	type pair struct{ caller, callee string }
	classes := make(map[pair][]multiplicity.Multiplicity)
	approx := make(map[pair]bool)
	for _, site := range sites {
		if _, ok := nodes[site.callerID]; !ok {
			nodes[site.callerID] = Node{
				ID:   site.callerID,
				Kind: ExternalNode,
				Name: site.callerName,
				File: site.callerFile,
			}
		}
		key := pair{site.callerID, site.calleeID}
		classes[key] = append(classes[key], site.class)
		approx[key] = approx[key] || site.approximate
	}

	var edges []Edge
	for key, cs := range classes {
		edges = append(edges, Edge{
			Caller:       key.caller,
			Callee:       key.callee,
			Multiplicity: multiplicity.Join(cs...),
			Sites:        len(cs),
			Approximate:  approx[key],
		})
	}

	nodeList := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		nodeList = append(nodeList, n)
	}

	return newGraph(nodeList, edges)
}
