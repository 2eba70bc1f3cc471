package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyadavis/turbo/pkg/export"
	"github.com/jeremyadavis/turbo/pkg/graph"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <snapshot>",
	Short: "Re-render a saved analysis snapshot",
	Long: `Reads a snapshot written by "analyze --snapshot" and renders it in
another format without re-running the oracle.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(args[0], cmd)
	},
}

func init() {
	exportCmd.Flags().String("format", "dot", "Output format: dot or cypher")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
}

func runExport(path string, cmd *cobra.Command) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	snap, err := export.ReadSnapshot(f)
	if err != nil {
		return err
	}
	view := graph.New(snap.Nodes, snap.Edges)

	out := os.Stdout
	if dest, _ := cmd.Flags().GetString("out"); dest != "" {
		out, err = os.Create(dest)
		if err != nil {
			return fmt.Errorf("creating %s: %w", dest, err)
		}
		defer out.Close()
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "dot":
		return export.WriteDOT(out, view)
	case "cypher":
		return export.WriteCypher(out, view, snap.RunID)
	default:
		return fmt.Errorf("unknown format %q (expected dot or cypher)", format)
	}
}
