package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jeremyadavis/turbo/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize taskgraph configuration interactively",
	Long: `Guides you through setting up taskgraph configuration step by step.
Creates a project-level config file with oracle and cache settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	oracleCmd := strings.Join(cfg.OracleCmd, " ")
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Language server command").
				Description("The binary (plus arguments) answering call-hierarchy queries").
				Placeholder("rust-analyzer").
				Value(&oracleCmd),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if fields := strings.Fields(oracleCmd); len(fields) > 0 {
		cfg.OracleCmd = fields
	}

	concurrency := strconv.Itoa(cfg.Concurrency)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Concurrent oracle queries").
				Description("How many symbols to resolve at once").
				Placeholder("4").
				Value(&concurrency).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n <= 0 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if n, err := strconv.Atoi(concurrency); err == nil && n > 0 {
		cfg.Concurrency = n
	}

	useCache := cfg.Cache
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Cache oracle answers between runs?").
				Description("Cached call sites make repeat analyses much faster").
				Affirmative("Yes, cache").
				Negative("No, always re-query").
				Value(&useCache),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Cache = useCache

	if err := cfg.Validate(); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	path := filepath.Join(cwd, cfg.CacheDir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
