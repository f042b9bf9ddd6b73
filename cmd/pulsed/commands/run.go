package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/am"
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"github.com/teranos/pulsed/pulse/archive"
	"github.com/teranos/pulsed/pulse/jobs"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/scheduler"
	"github.com/teranos/pulsed/sym"
)

// RunCmd starts a scheduler instance in the foreground
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Pulse + " Start a scheduler instance",
	Long: sym.Pulse + ` Start a scheduler instance in the foreground.

Every tick the instance admits pending tasks that fit its free slots, then
closes finished, timed out and cancelled tasks. Tasks left IN_PROGRESS by an
instance that died are closed as timed out once their limit passes.

Ctrl+C (or SIGTERM) stops admission, closes the local running tasks as FAILED
and waits for log archival to finish.

Example:
  pulsed run                 # Use configured slots
  pulsed run --slots 64      # Override the slot budget`,
	RunE: runScheduler,
}

var (
	runSlotsFlag      int
	runInstanceIDFlag string
)

func init() {
	RunCmd.Flags().IntVar(&runSlotsFlag, "slots", -1, "Slot budget (default: scheduler.available_slots)")
	RunCmd.Flags().StringVar(&runInstanceIDFlag, "instance-id", "", "Instance id written to runBy (default: random)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("verbose") {
		if err := logger.SetLevel(cfg.Scheduler.LogLevel); err != nil {
			return err
		}
	}

	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	sb, err := newSandbox(cfg)
	if err != nil {
		return err
	}
	arch, err := archive.New(archiveOptions(cfg))
	if err != nil {
		return errors.Wrap(err, "failed to configure log archive")
	}

	schedCfg := scheduler.Config{
		AvailableSlots: cfg.Scheduler.AvailableSlots,
		TickInterval:   cfg.Scheduler.TickInterval(),
	}
	if runSlotsFlag >= 0 {
		schedCfg.AvailableSlots = runSlotsFlag
	}
	opts := []scheduler.Option{
		scheduler.WithArchiver(arch),
		scheduler.WithLogger(logger.Logger),
	}
	if runInstanceIDFlag != "" {
		opts = append(opts, scheduler.WithInstanceID(runInstanceIDFlag))
	}
	sched, err := scheduler.New(st, sb, schedCfg, opts...)
	if err != nil {
		return err
	}

	if path := am.ActiveConfigFile(); path != "" {
		if w, err := watchLogLevel(path); err != nil {
			logger.Warnw("Config hot reload disabled", logger.FieldPath, path, logger.FieldError, err)
		} else {
			defer w.Stop()
		}
	}

	pterm.Info.Printf("%s Instance %s\n", sym.Pulse, sched.InstanceID())
	pterm.Printf("  Slots:    %d\n", schedCfg.AvailableSlots)
	pterm.Printf("  Tick:     %v\n", schedCfg.TickInterval)
	pterm.Printf("  Sandbox:  %s\n", cfg.Scheduler.Sandbox)
	pterm.Printf("  Archive:  %s\n", cfg.Archive.Backend)
	pterm.Printf("  Database: %s\n\n", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		return err
	}
	pterm.Success.Println(sym.PulseClose + " Scheduler stopped")
	return nil
}

// newSandbox builds the configured sandbox and makes sure the log directory exists
func newSandbox(cfg *am.Config) (sandbox.Sandbox, error) {
	logsPath := cfg.Scheduler.LogsPath
	if err := os.MkdirAll(logsPath, am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create logs directory %s", logsPath)
	}

	switch cfg.Scheduler.Sandbox {
	case am.SandboxInProcess:
		return sandbox.NewInProcessSandbox(jobs.Registry(), logsPath, cfg.Scheduler.LogLevel), nil
	case am.SandboxProcess, "":
		return sandbox.NewProcessSandbox(cfg.Scheduler.WorkerCommand, logsPath, cfg.Scheduler.LogLevel)
	default:
		return nil, errors.NewInvalidRequestError("unknown sandbox %q", cfg.Scheduler.Sandbox)
	}
}

func archiveOptions(cfg *am.Config) archive.Options {
	return archive.Options{
		Backend:          cfg.Archive.Backend,
		LogsPath:         cfg.Scheduler.LogsPath,
		Dir:              cfg.Archive.Dir,
		RedisAddr:        cfg.Archive.RedisAddr,
		RedisKeyPrefix:   cfg.Archive.RedisKeyPrefix,
		RedisTTL:         cfg.Archive.RedisTTL(),
		UploadsPerSecond: cfg.Archive.UploadsPerSecond,
	}
}

// watchLogLevel applies log_level changes from the active config file without a restart.
// Other settings take effect on the next start.
func watchLogLevel(path string) (*am.ConfigWatcher, error) {
	w, err := am.NewConfigWatcher(path)
	if err != nil {
		return nil, err
	}
	w.OnReload(func(c *am.Config) error {
		return logger.SetLevel(c.Scheduler.LogLevel)
	})
	am.SetGlobalWatcher(w)
	w.Start()
	return w, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
