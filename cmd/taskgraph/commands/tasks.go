package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/internal/scanner"
	"github.com/jeremyadavis/turbo/pkg/registry"
)

// TaskOutput represents one discovered task in JSON output
type TaskOutput struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Line     uint32   `json:"line"`
	Language string   `json:"language"`
	Tags     []string `json:"tags,omitempty"`
}

// TasksOutput represents the output of the tasks command
type TasksOutput struct {
	RootDir string       `json:"root_dir"`
	Tasks   []TaskOutput `json:"tasks"`
	Skipped int          `json:"skipped_units,omitempty"`
}

// tasksCmd represents the tasks command
var tasksCmd = &cobra.Command{
	Use:   "tasks [path]",
	Short: "List discovered task functions",
	Long: `Scans a repository and lists every task-annotated function without
querying the language server. Useful for checking annotation coverage
before a full analysis.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		return runTasks(path, cmd)
	},
}

func init() {
	tasksCmd.Flags().Bool("json", false, "Output as JSON")
}

func runTasks(path string, cmd *cobra.Command) error {
	logger := log.Default()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("getting absolute path: %w", err)
	}

	opts := scanner.DefaultOptions()
	opts.Include = cfg.Include
	opts.Exclude = cfg.Exclude
	units, err := scanner.New(opts).Scan(absPath)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", absPath, err)
	}

	catalog, skipped := registry.Discover(units, logger)
	for _, s := range skipped {
		logger.Warn("skipped source unit", "unit", s.Unit, "error", s.Err)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		out := TasksOutput{
			RootDir: absPath,
			Tasks:   make([]TaskOutput, 0, catalog.Len()),
			Skipped: len(skipped),
		}
		for _, sym := range catalog.Symbols() {
			out.Tasks = append(out.Tasks, TaskOutput{
				ID:       sym.ID(),
				Name:     sym.Name,
				File:     sym.File,
				Line:     sym.Point.Row + 1,
				Language: string(sym.Language),
				Tags:     sym.Tags,
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if catalog.Len() == 0 {
		fmt.Println("No task-annotated functions found.")
		return nil
	}
	for _, sym := range catalog.Symbols() {
		line := fmt.Sprintf("%s:%d  %s", sym.File, sym.Point.Row+1, sym.Name)
		if len(sym.Tags) > 0 {
			line += fmt.Sprintf("  (%v)", sym.Tags)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d tasks", catalog.Len())
	if len(skipped) > 0 {
		fmt.Printf(", %d source units skipped", len(skipped))
	}
	fmt.Println()
	return nil
}
