package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyadavis/turbo/internal/config"
	"github.com/jeremyadavis/turbo/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "taskgraph - Call graph and multiplicity analysis for task functions",
	Long: `taskgraph finds task-annotated functions in a repository, recovers the
call graph among them with a language server, and classifies each call
relationship by how often it executes relative to its caller.

Commands:
  analyze     Build and export the task call graph
  tasks       List discovered task functions
  export      Re-render a saved analysis snapshot
  init        Initialize taskgraph configuration interactively

Use "taskgraph [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log.Default().SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// SetVersion records build metadata shown by the version command.
func SetVersion(version, buildTime string) {
	RootCmd.Version = version
	if buildTime != "" {
		RootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
	}
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (overrides discovery)")
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")

	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(tasksCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(initCmd)
}

// loadConfig resolves the effective configuration for a command, honoring
// the --config flag when set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
