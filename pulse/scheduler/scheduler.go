// Package scheduler drives tasks from PENDING to a terminal state.
//
// Every tick runs an admission pass followed by a lifecycle pass. Admission
// moves candidate tasks to IN_PROGRESS through a conditional update, so any
// number of instances can share one store and each task is admitted at most
// once. Lifecycle closes finished, timed out and cancelled tasks, releases
// their slots, archives their logs and schedules the next task of a
// recurrence chain.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"github.com/teranos/pulsed/pulse/archive"
	"github.com/teranos/pulsed/pulse/sandbox"
	"github.com/teranos/pulsed/pulse/slots"
	"github.com/teranos/pulsed/pulse/store"
)

const (
	// DefaultAvailableSlots is the slot budget of an instance
	DefaultAvailableSlots = 512

	// DefaultTickInterval is the pause between ticks
	DefaultTickInterval = time.Second

	archiveTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	unitExitTimeout = 5 * time.Second
)

// Config contains the scheduling parameters of one instance
type Config struct {
	AvailableSlots int           `json:"available_slots"`
	TickInterval   time.Duration `json:"tick_interval"`
}

// DefaultConfig returns the stock budget and cadence
func DefaultConfig() Config {
	return Config{
		AvailableSlots: DefaultAvailableSlots,
		TickInterval:   DefaultTickInterval,
	}
}

// Option customises a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInstanceID fixes the instance id instead of generating one
func WithInstanceID(id string) Option {
	return func(s *Scheduler) { s.instanceID = id }
}

// WithArchiver sets where closed task logs go. Defaults to archive.Nop.
func WithArchiver(a archive.Archiver) Option {
	return func(s *Scheduler) { s.archiver = a }
}

// WithLogger sets the parent logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler is one scheduling instance. Its slot pool and unit registry are
// local; everything else lives in the store.
type Scheduler struct {
	store      store.Store
	sandbox    sandbox.Sandbox
	units      *sandbox.Registry
	slots      *slots.Pool
	archiver   archive.Archiver
	instanceID string
	interval   time.Duration
	now        func() time.Time

	log      *zap.SugaredLogger
	pulseLog *zap.SugaredLogger

	archiveWG sync.WaitGroup

	mu         sync.Mutex
	ticks      int64
	lastStatus Status
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a scheduler over st that starts units in sb
func New(st store.Store, sb sandbox.Sandbox, cfg Config, opts ...Option) (*Scheduler, error) {
	if st == nil || sb == nil {
		return nil, errors.NewInvalidRequestError("scheduler requires a store and a sandbox")
	}
	if cfg.TickInterval <= 0 {
		return nil, errors.NewInvalidRequestError("tick interval must be positive, got %s", cfg.TickInterval)
	}
	pool, err := slots.NewPool(cfg.AvailableSlots)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:    st,
		sandbox:  sb,
		units:    sandbox.NewRegistry(),
		slots:    pool,
		archiver: archive.Nop{},
		interval: cfg.TickInterval,
		now:      time.Now,
		log:      logger.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.instanceID == "" {
		s.instanceID = uuid.NewString()
	}
	s.log = s.log.Named("scheduler").With(logger.FieldInstanceID, s.instanceID)
	s.pulseLog = logger.AddPulseSymbol(s.log)
	s.lastStatus = Status{Running: -1}
	return s, nil
}

// InstanceID identifies this instance in the runBy field of tasks it admits
func (s *Scheduler) InstanceID() string { return s.instanceID }

// Slots exposes the local slot pool
func (s *Scheduler) Slots() *slots.Pool { return s.slots }

// Run checks the store and ticks until ctx is cancelled or Stop is called.
// An unreachable store at startup is returned as an error; failures of
// individual ticks are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return errors.Wrap(err, "task store unreachable at startup")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	defer close(done)
	defer cancel()

	logger.AddPulseOpenSymbol(s.log).Infow("Scheduler started",
		logger.FieldSlotsTotal, s.slots.Capacity(),
		"interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			if err := s.Tick(runCtx); err != nil {
				if runCtx.Err() != nil {
					continue
				}
				if errors.IsServiceUnavailableError(err) {
					s.pulseLog.Warnw("Task store unavailable, retrying next tick", logger.FieldTick, s.tickCount(), logger.FieldError, err)
					continue
				}
				s.pulseLog.Errorw("Tick failed", logger.FieldTick, s.tickCount(), logger.FieldError, err)
			}
		}
	}
}

// Stop ends Run and waits for its shutdown to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick runs one admission pass and one lifecycle pass
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()

	if err := s.admit(ctx, s.clock()); err != nil {
		return errors.Wrap(err, "admission")
	}
	if err := s.reconcile(ctx, s.clock()); err != nil {
		return errors.Wrap(err, "lifecycle")
	}
	s.logStatus()
	return nil
}

// clock is the current time at the precision the store keeps, so a task's
// in-memory timestamps match what is read back
func (s *Scheduler) clock() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *Scheduler) tickCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// shutdown kills local units and closes their tasks FAILED so their slots and
// recurrence are not held hostage until the timeout fires
func (s *Scheduler) shutdown() {
	closing := logger.AddPulseCloseSymbol(s.log)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.units.Len() > 0 {
		closing.Infow("Stopping local units", logger.FieldCount, s.units.Len())
		running, err := s.store.GetRunningTasks(ctx)
		if err != nil {
			closing.Errorw("Failed to load running tasks during shutdown", logger.FieldError, err)
		}
		for _, t := range running {
			if t.RunBy != s.instanceID {
				continue
			}
			if _, local := s.units.Lookup(t.ID); !local {
				continue
			}
			if err := s.closeTask(ctx, t, statusOnShutdown, s.clock()); err != nil {
				closing.Errorw("Failed to close task during shutdown", logger.FieldTaskID, t.ID, logger.FieldError, err)
			}
		}
		// Anything left could not be closed; kill it and let the timeout recover the task
		for _, id := range s.units.IDs() {
			s.dropUnit(id)
		}
	}

	s.archiveWG.Wait()
	if err := s.archiver.Close(); err != nil {
		closing.Warnw("Failed to close archiver", logger.FieldError, err)
	}
	closing.Infow("Scheduler stopped", logger.FieldTick, s.tickCount())
}

// dropUnit kills and forgets the local unit of taskID and frees its slots.
// It returns the unit's Done channel, or nil when no unit was tracked.
func (s *Scheduler) dropUnit(taskID string) <-chan struct{} {
	var exited <-chan struct{}
	if h, ok := s.units.Lookup(taskID); ok {
		exited = h.Done()
	}
	if err := s.units.Kill(taskID); err != nil {
		s.log.Debugw("Kill of sandbox unit failed", logger.FieldTaskID, taskID, logger.FieldError, err)
	}
	s.units.Forget(taskID)
	if n, ok := s.slots.Release(taskID); ok {
		s.log.Debugw("Released slots", logger.FieldTaskID, taskID, logger.FieldSlots, n,
			logger.FieldSlotsAvailable, s.slots.Available())
	}
	return exited
}

// Cancel marks a PENDING or IN_PROGRESS task CANCELED. A running unit is
// stopped by the instance that owns it on its next tick.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	if err := s.store.CancelTask(ctx, taskID, s.clock()); err != nil {
		return err
	}
	s.pulseLog.Infow("Cancellation requested", logger.FieldTaskID, taskID)
	return nil
}
