package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/pulse/jobs"
	"github.com/teranos/pulsed/pulse/sandbox"
)

// WorkerCmd runs one task inside a process sandbox. The scheduler starts it
// with the execution request on stdin and reads only the exit code.
var WorkerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Execute one task from an execution request on stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		code := sandbox.RunJob(contextOf(cmd), jobs.Registry(), workerLogsPath, workerLogLevel, os.Stdin)
		os.Exit(code)
	},
}

var (
	workerLogsPath string
	workerLogLevel string
)

func init() {
	WorkerCmd.Flags().StringVar(&workerLogsPath, "logs-path", "logs", "Directory holding per-task logs")
	WorkerCmd.Flags().StringVar(&workerLogLevel, "log-level", "info", "Task log level")
}
