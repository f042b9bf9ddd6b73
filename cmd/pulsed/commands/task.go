package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/internal/util"
	"github.com/teranos/pulsed/pulse/scheduler"
	"github.com/teranos/pulsed/pulse/store"
	"github.com/teranos/pulsed/pulse/task"
	"github.com/teranos/pulsed/sym"
)

// TaskCmd groups task management
var TaskCmd = &cobra.Command{
	Use:   "task",
	Short: sym.Pulse + " Create, list, inspect and cancel tasks",
	Long: sym.Pulse + ` task - Create, list, inspect and cancel tasks

A task starts at a point in time (--start-at or --start-in) or after another
task completes (--after). With --recurrence N the next task of the chain is
created N seconds after this one closes.

Examples:
  pulsed task create --job <job-id> --start-in 0s
  pulsed task create --job <job-id> --start-at 2026-01-01T00:00:00Z --recurrence 3600
  pulsed task create --job <job-id> --after <task-id> --metadata '{"command":"make report"}'
  pulsed task ls --status IN_PROGRESS
  pulsed task show <task-id>
  pulsed task cancel <task-id>`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Args:  cobra.NoArgs,
	RunE:  runTaskCreate,
}

var taskLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List tasks, newest first",
	Args:    cobra.NoArgs,
	RunE:    runTaskLs,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a pending or running task",
	Long: `Cancel a pending or running task.

A running task is stopped by the instance running it on its next tick.
Cancelling a task that already ended fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCancel,
}

var (
	taskJobFlag        string
	taskStartAtFlag    string
	taskStartInFlag    string
	taskAfterFlag      string
	taskRecurrenceFlag int64
	taskMetadataFlag   string

	taskStatusFlag string
	taskLimitFlag  int
)

func init() {
	taskCreateCmd.Flags().StringVar(&taskJobFlag, "job", "", "Job id")
	taskCreateCmd.Flags().StringVar(&taskStartAtFlag, "start-at", "", "Start time (RFC3339)")
	taskCreateCmd.Flags().StringVar(&taskStartInFlag, "start-in", "", "Start after a delay from now (e.g. 0s, 5m)")
	taskCreateCmd.Flags().StringVar(&taskAfterFlag, "after", "", "Start once this task completes")
	taskCreateCmd.Flags().Int64Var(&taskRecurrenceFlag, "recurrence", 0, "Seconds between the end of a run and the next start")
	taskCreateCmd.Flags().StringVar(&taskMetadataFlag, "metadata", "", "JSON object passed to the job")
	_ = taskCreateCmd.MarkFlagRequired("job")

	taskLsCmd.Flags().StringVar(&taskStatusFlag, "status", "", "Only tasks with this status")
	taskLsCmd.Flags().StringVar(&taskJobFlag, "job", "", "Only tasks of this job")
	taskLsCmd.Flags().IntVar(&taskLimitFlag, "limit", 50, "Maximum number of tasks")

	TaskCmd.AddCommand(taskCreateCmd)
	TaskCmd.AddCommand(taskLsCmd)
	TaskCmd.AddCommand(taskShowCmd)
	TaskCmd.AddCommand(taskCancelCmd)
}

// taskPayloadFromFlags turns the create flags into a payload
func taskPayloadFromFlags(cmd *cobra.Command, now time.Time) (scheduler.TaskPayload, error) {
	p := scheduler.TaskPayload{Job: taskJobFlag, StartAfter: taskAfterFlag}

	if taskStartAtFlag != "" && taskStartInFlag != "" {
		return p, errors.NewInvalidRequestError("--start-at and --start-in are mutually exclusive")
	}
	if taskStartAtFlag != "" {
		at, err := time.Parse(time.RFC3339, taskStartAtFlag)
		if err != nil {
			return p, errors.Wrapf(errors.ErrInvalidRequest, "invalid --start-at %q: %v", taskStartAtFlag, err)
		}
		p.StartAt = &at
	}
	if taskStartInFlag != "" {
		d, err := time.ParseDuration(taskStartInFlag)
		if err != nil {
			return p, errors.Wrapf(errors.ErrInvalidRequest, "invalid --start-in %q: %v", taskStartInFlag, err)
		}
		at := now.Add(d)
		p.StartAt = &at
	}
	if cmd.Flags().Changed("recurrence") {
		p.Recurrence = util.Ptr(taskRecurrenceFlag)
	}
	if taskMetadataFlag != "" {
		if !json.Valid([]byte(taskMetadataFlag)) {
			return p, errors.NewInvalidRequestError("--metadata is not valid JSON")
		}
		p.Metadata = json.RawMessage(taskMetadataFlag)
	}
	return p, nil
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	p, err := taskPayloadFromFlags(cmd, time.Now())
	if err != nil {
		return err
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

	t, err := scheduler.CreateTask(contextOf(cmd), st, p)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Created task %s\n", t.ID)
	return nil
}

func runTaskLs(cmd *cobra.Command, args []string) error {
	status := task.Status(strings.ToUpper(taskStatusFlag))
	if status != "" && !task.IsValidStatus(string(status)) {
		return errors.NewInvalidRequestError("unknown status %q", taskStatusFlag)
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

	list, err := st.ListTasks(contextOf(cmd), store.ListOptions{
		Status: status,
		JobID:  taskJobFlag,
		Limit:  taskLimitFlag,
	})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		pterm.Info.Println("No tasks")
		return nil
	}
	return renderTable(taskRows(list))
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	t, err := st.GetTask(contextOf(cmd), args[0])
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal task")
	}
	fmt.Println(string(data))
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := st.CancelTask(contextOf(cmd), args[0], time.Now()); err != nil {
		return err
	}
	pterm.Success.Printf("Cancelled task %s\n", args[0])
	return nil
}
