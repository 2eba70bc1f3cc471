package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/internal/scanner"
	"github.com/jeremyadavis/turbo/pkg/export"
	"github.com/jeremyadavis/turbo/pkg/graph"
	"github.com/jeremyadavis/turbo/pkg/oracle"
	"github.com/jeremyadavis/turbo/pkg/oracle/lsp"
)

// AnalyzeOutput represents the output of the analyze command
type AnalyzeOutput struct {
	RootDir string        `json:"root_dir"`
	Nodes   []graph.Node  `json:"nodes"`
	Edges   []graph.Edge  `json:"edges"`
	Report  *graph.Report `json:"report"`
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Build and export the task call graph",
	Long: `Scans a repository for task-annotated functions, asks the configured
language server who calls each one, and classifies every call relationship
by execution multiplicity. Results can be written as Graphviz DOT, Cypher
statements, or a reloadable snapshot.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		return runAnalyze(path, cmd)
	},
}

func init() {
	analyzeCmd.Flags().String("dot", "", "Write the graph as Graphviz DOT to this file")
	analyzeCmd.Flags().String("cypher", "", "Write the graph as Cypher statements to this file")
	analyzeCmd.Flags().String("snapshot", "", "Write a reloadable msgpack snapshot to this file")
	analyzeCmd.Flags().Bool("json", false, "Print the full result as JSON instead of a summary")
	analyzeCmd.Flags().Bool("no-cache", false, "Do not read or write the call-site cache")
	analyzeCmd.Flags().Bool("reindex", false, "Ignore cached call sites but refresh the cache")
	analyzeCmd.Flags().String("oracle", "", "Language server command (overrides config)")
	analyzeCmd.Flags().Int("concurrency", 0, "Concurrent oracle queries (overrides config)")
}

func runAnalyze(path string, cmd *cobra.Command) error {
	logger := log.Default()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("oracle"); v != "" {
		cfg.OracleCmd = strings.Fields(v)
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absPath)
	}

	opts := scanner.DefaultOptions()
	opts.Include = cfg.Include
	opts.Exclude = cfg.Exclude
	units, err := scanner.New(opts).Scan(absPath)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", absPath, err)
	}
	if len(units) == 0 {
		return fmt.Errorf("no supported source units found under %s", absPath)
	}
	logger.Debug("scan complete", "units", len(units))

	ctx := cmd.Context()
	session, err := lsp.Start(ctx, lsp.Options{
		Command:      cfg.OracleCmd,
		RootPath:     absPath,
		QueryTimeout: time.Duration(cfg.QueryTimeoutSecs) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	var client oracle.Client = oracle.NewRetrying(
		session,
		cfg.MaxRetries,
		time.Duration(cfg.RetryBackoffMS)*time.Millisecond,
		logger,
	)

	noCache, _ := cmd.Flags().GetBool("no-cache")
	reindex, _ := cmd.Flags().GetBool("reindex")
	useCache := cfg.Cache && !noCache
	var cache *oracle.Cache
	if useCache {
		cache = oracle.NewCache(client)
		if !reindex {
			if err := cache.Load(cfg.CachePath(absPath)); err != nil {
				logger.Warn("discarding unreadable cache", "error", err)
			}
		}
		client = cache
	}
	defer client.Close()

	builder := graph.NewBuilder(graph.Options{
		Oracle:      client,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	result, report, err := builder.Run(ctx, units)
	if err != nil {
		return err
	}

	if useCache {
		if err := cache.Save(cfg.CachePath(absPath)); err != nil {
			logger.Warn("failed to save call-site cache", "error", err)
		}
	}

	if err := writeExports(cmd, result, report); err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		out := AnalyzeOutput{
			RootDir: absPath,
			Nodes:   result.Nodes(),
			Edges:   result.Edges(),
			Report:  report,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printSummary(result, report)
	return nil
}

func writeExports(cmd *cobra.Command, result *graph.Graph, report *graph.Report) error {
	if path, _ := cmd.Flags().GetString("dot"); path != "" {
		if err := writeFileWith(path, func(f *os.File) error {
			return export.WriteDOT(f, result)
		}); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("cypher"); path != "" {
		if err := writeFileWith(path, func(f *os.File) error {
			return export.WriteCypher(f, result, report.RunID)
		}); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("snapshot"); path != "" {
		if err := writeFileWith(path, func(f *os.File) error {
			return export.WriteSnapshot(f, result, report)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFileWith(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printSummary(result *graph.Graph, report *graph.Report) {
	fmt.Printf("Tasks:       %d\n", report.Tasks)
	fmt.Printf("Externals:   %d\n", report.Externals)
	fmt.Printf("Edges:       %d (%d call sites)\n", report.EdgeCount, report.SiteCount)
	fmt.Printf("Duration:    %s\n", report.Duration.Round(time.Millisecond))
	if len(report.SkippedUnits) > 0 {
		fmt.Printf("Skipped:     %d source units failed to parse\n", len(report.SkippedUnits))
	}
	if len(report.PartialSymbols) > 0 {
		fmt.Printf("Partial:     %d tasks without complete oracle answers\n", len(report.PartialSymbols))
		for _, p := range report.PartialSymbols {
			fmt.Printf("  %s: %s\n", p.ID, p.Reason)
		}
	}
	if report.ApproximateSites > 0 {
		fmt.Printf("Approximate: %d call sites classified conservatively\n", report.ApproximateSites)
	}

	fmt.Println()
	for _, edge := range result.Edges() {
		marker := ""
		if edge.Approximate {
			marker = " (approx)"
		}
		fmt.Printf("%s -> %s [%s, %d sites]%s\n",
			edge.Caller, edge.Callee, edge.Multiplicity, edge.Sites, marker)
	}
}
