package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/cmd/pulsed/commands"
	"github.com/teranos/pulsed/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pulsed",
	Short: "pulsed - slot-budgeted job scheduler",
	Long: `pulsed - persistence-backed job scheduler with a per-instance slot budget.

Jobs describe work, tasks schedule it. Any number of pulsed instances can
share one database; each admits tasks up to its slot budget, runs them in a
sandbox and closes them when they finish, fail or time out.

Available commands:
  run    - Start a scheduler instance
  job    - Create and list jobs
  task   - Create, list, inspect and cancel tasks
  seed   - Create jobs and tasks from a YAML manifest
  db     - Migrate and inspect the task database
  am     - Show and initialise configuration ("I am")

Examples:
  pulsed am init                               # Write ~/.pulsed/am.toml
  pulsed job create --script pulse.sleep --slots 256 --max-exec-time 60
  pulsed task create --job <id> --start-in 0s --recurrence 10
  pulsed run                                   # Start scheduling`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The worker logs to its task file only; stdout belongs to nobody
		if cmd.Name() == commands.WorkerCmd.Name() {
			return nil
		}
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if verbosity > 0 {
			logger.SetZapLevel(logger.VerbosityToLevel(verbosity))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.TaskCmd)
	rootCmd.AddCommand(commands.SeedCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
