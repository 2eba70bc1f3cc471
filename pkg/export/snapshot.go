package export

import (
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyadavis/turbo/pkg/graph"
)

// snapshotVersion is bumped whenever the serialized layout changes in a way
// old readers cannot handle.
const snapshotVersion = 1

// Snapshot is the full analysis result in a form other tools can reload
// without re-running the oracle.
type Snapshot struct {
	Version     int           `msgpack:"version"`
	RunID       string        `msgpack:"run_id"`
	GeneratedAt time.Time     `msgpack:"generated_at"`
	Nodes       []graph.Node  `msgpack:"nodes"`
	Edges       []graph.Edge  `msgpack:"edges"`
	Report      *graph.Report `msgpack:"report,omitempty"`
}

// WriteSnapshot serializes the graph and its run report as msgpack.
func WriteSnapshot(w io.Writer, view graph.View, report *graph.Report) error {
	snap := Snapshot{
		Version:     snapshotVersion,
		GeneratedAt: time.Now().UTC(),
		Nodes:       view.Nodes(),
		Edges:       view.Edges(),
		Report:      report,
	}
	if report != nil {
		snap.RunID = report.RunID
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ReadSnapshot decodes a snapshot previously written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version > snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported version %d",
			snap.Version, snapshotVersion)
	}
	return &snap, nil
}
