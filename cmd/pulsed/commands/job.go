package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/pulse/jobs"
	"github.com/teranos/pulsed/pulse/scheduler"
	"github.com/teranos/pulsed/sym"
)

// JobCmd groups job management
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: sym.Pulse + " Create and list jobs",
	Long: sym.Pulse + ` job - Create and list jobs

A job names the function a task runs (its script), the slots one run
occupies and how long a run may take before it is closed as FAILED.

Builtin scripts: ` + "pulse.noop, pulse.sleep, pulse.fail, pulse.shell, pulse.prune-logs" + `

Examples:
  pulsed job create --script pulse.shell --slots 16 --max-exec-time 300
  pulsed job ls`,
}

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job",
	Args:  cobra.NoArgs,
	RunE:  runJobCreate,
}

var jobLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List jobs",
	Args:    cobra.NoArgs,
	RunE:    runJobLs,
}

var (
	jobScriptFlag      string
	jobSlotsFlag       int
	jobMaxExecTimeFlag int64
)

func init() {
	jobCreateCmd.Flags().StringVar(&jobScriptFlag, "script", "", "Script (registered job name) to run")
	jobCreateCmd.Flags().IntVar(&jobSlotsFlag, "slots", 1, "Slots one run occupies")
	jobCreateCmd.Flags().Int64Var(&jobMaxExecTimeFlag, "max-exec-time", 60, "Maximum execution time in seconds")
	_ = jobCreateCmd.MarkFlagRequired("script")

	JobCmd.AddCommand(jobCreateCmd)
	JobCmd.AddCommand(jobLsCmd)
}

func runJobCreate(cmd *cobra.Command, args []string) error {
	if !jobs.Registry().Has(jobScriptFlag) {
		pterm.Warning.Printf("%q is not a builtin script; tasks of this job fail unless the worker registers it\n", jobScriptFlag)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	j, err := scheduler.CreateJob(contextOf(cmd), st, scheduler.JobPayload{
		ScriptPath:           jobScriptFlag,
		RequiredSlots:        jobSlotsFlag,
		MaximumExecutionTime: jobMaxExecTimeFlag,
	})
	if err != nil {
		return err
	}
	pterm.Success.Printf("Created job %s\n", j.ID)
	return nil
}

func runJobLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	list, err := st.ListJobs(contextOf(cmd))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}
	return renderTable(jobRows(list))
}
