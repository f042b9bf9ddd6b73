package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/teranos/pulsed/db"
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// SQLStore implements Store on database/sql for sqlite3 and postgres.
// Timestamps are stored as unix milliseconds; creation order is the seq column.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore creates a store for an opened and migrated database.
func NewSQLStore(database *sql.DB, driver string) *SQLStore {
	normalized, err := db.NormalizeDriver(driver)
	if err != nil {
		normalized = db.DriverSQLite
	}
	return &SQLStore{db: database, driver: normalized}
}

func (s *SQLStore) q(query string) string {
	return db.Rebind(s.driver, query)
}

// Ping verifies the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapServiceUnavailable(err, "task store unreachable")
	}
	return nil
}

// CreateJob persists a new job
func (s *SQLStore) CreateJob(ctx context.Context, job *task.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO jobs (id, script_path, required_slots, maximum_execution_time, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), job.ID, job.ScriptPath, job.RequiredSlots, job.MaximumExecutionTime, job.CreatedAt.UnixMilli())
	if err != nil {
		return errors.Wrapf(db.Classify(err), "failed to create job %s", job.ID)
	}
	return nil
}

const jobSelectColumns = `id, script_path, required_slots, maximum_execution_time, created_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*task.Job, error) {
	job := &task.Job{}
	var createdAt int64
	if err := row.Scan(&job.ID, &job.ScriptPath, &job.RequiredSlots, &job.MaximumExecutionTime, &createdAt); err != nil {
		return nil, err
	}
	job.CreatedAt = time.UnixMilli(createdAt)
	return job, nil
}

// GetJob retrieves a job by ID
func (s *SQLStore) GetJob(ctx context.Context, id string) (*task.Job, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+jobSelectColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// ListJobs returns all jobs in creation order
func (s *SQLStore) ListJobs(ctx context.Context) ([]*task.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobSelectColumns+` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*task.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Wrap(rows.Err(), "error iterating jobs")
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CreateTask persists a new task
func (s *SQLStore) CreateTask(ctx context.Context, t *task.Task) error {
	return s.insertTask(ctx, s.db, t)
}

func (s *SQLStore) insertTask(ctx context.Context, ex execer, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	meta, err := t.Metadata.Encode()
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, s.q(`
		INSERT INTO tasks (
			id, status, run_by, started_at, ended_at, parent_id, job_id,
			metadata, start_at, recurrence, start_after_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		t.ID, string(t.Status), nullString(t.RunBy), toMillis(t.StartedAt), toMillis(t.EndedAt),
		nullString(t.ParentID), t.JobID, meta, toMillis(t.StartAt), nullInt64(t.Recurrence),
		nullString(t.StartAfterID), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		err = errors.WithDetail(err, fmt.Sprintf("job_id: %s", t.JobID))
		return errors.Wrapf(db.Classify(err), "failed to create task %s", t.ID)
	}
	return nil
}

// UpdateTask overwrites every mutable field of a task unconditionally
func (s *SQLStore) UpdateTask(ctx context.Context, t *task.Task) error {
	meta, err := t.Metadata.Encode()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tasks SET
			status = ?, run_by = ?, started_at = ?, ended_at = ?, parent_id = ?,
			metadata = ?, start_at = ?, recurrence = ?, start_after_id = ?
		WHERE id = ?
	`),
		string(t.Status), nullString(t.RunBy), toMillis(t.StartedAt), toMillis(t.EndedAt),
		nullString(t.ParentID), meta, toMillis(t.StartAt), nullInt64(t.Recurrence),
		nullString(t.StartAfterID), t.ID,
	)
	if err != nil {
		return errors.Wrapf(db.Classify(err), "failed to update task %s", t.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("task %s", t.ID)
	}
	return nil
}

// GetTask retrieves a task by ID with its job and startAfter resolved
func (s *SQLStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+taskSelectColumns+taskFromJoins+` WHERE t.id = ?`), id)
	if err != nil {
		return nil, errors.Wrapf(db.Classify(err), "failed to get task %s", id)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errors.NewNotFoundError("task %s", id)
	}
	return tasks[0], nil
}

// ListTasks returns tasks newest first
func (s *SQLStore) ListTasks(ctx context.Context, opts ListOptions) ([]*task.Task, error) {
	var (
		where []string
		args  []interface{}
	)
	if opts.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.JobID != "" {
		where = append(where, "t.job_id = ?")
		args = append(args, opts.JobID)
	}

	query := `SELECT ` + taskSelectColumns + taskFromJoins
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.seq DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, errors.Wrap(db.Classify(err), "failed to list tasks")
	}
	return scanTasks(rows)
}

// UpdateMatchingTask applies patch to the task selected by filter.
// Returns false, nil when no row matched (e.g. another instance won the race).
func (s *SQLStore) UpdateMatchingTask(ctx context.Context, filter Filter, patch Patch) (bool, error) {
	return s.updateMatching(ctx, s.db, filter, patch)
}

// CloseTask applies patch to the task selected by filter and, when it matched
// and next is not nil, inserts next in the same transaction. Either both
// writes land or neither does, so a failed insert leaves the task selectable
// by the same filter on the next attempt.
func (s *SQLStore) CloseTask(ctx context.Context, filter Filter, patch Patch, next *task.Task) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrapf(db.Classify(err), "failed to begin closing task %s", filter.ID)
	}
	defer func() { _ = tx.Rollback() }()

	won, err := s.updateMatching(ctx, tx, filter, patch)
	if err != nil || !won {
		return false, err
	}
	if next != nil {
		if err := s.insertTask(ctx, tx, next); err != nil {
			return false, errors.Wrapf(err, "failed to schedule successor of task %s", filter.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrapf(db.Classify(err), "failed to commit closing task %s", filter.ID)
	}
	return true, nil
}

func (s *SQLStore) updateMatching(ctx context.Context, ex execer, filter Filter, patch Patch) (bool, error) {
	if filter.ID == "" {
		return false, errors.NewInvalidRequestError("conditional update requires a task id")
	}

	var (
		sets []string
		args []interface{}
	)
	if patch.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(patch.Status))
	}
	if patch.RunBy != nil {
		sets = append(sets, "run_by = ?")
		args = append(args, nullString(*patch.RunBy))
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, patch.StartedAt.UnixMilli())
	}
	if patch.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, patch.EndedAt.UnixMilli())
	}
	if len(sets) == 0 {
		return false, errors.NewInvalidRequestError("conditional update for task %s has an empty patch", filter.ID)
	}

	where := []string{"id = ?"}
	args = append(args, filter.ID)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RunBy != "" {
		where = append(where, "run_by = ?")
		args = append(args, filter.RunBy)
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	res, err := ex.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		err = errors.WithDetail(err, fmt.Sprintf("filter_status: %s", filter.Status))
		return false, errors.Wrapf(db.Classify(err), "failed to conditionally update task %s", filter.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n == 1, nil
}

// CancelTask marks a PENDING or IN_PROGRESS task CANCELED.
// The instance running it notices on its next tick and closes it.
func (s *SQLStore) CancelTask(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tasks SET status = ?, ended_at = ?
		WHERE id = ? AND status IN (?, ?)
	`), string(task.StatusCanceled), now.UnixMilli(), id, string(task.StatusPending), string(task.StatusInProgress))
	if err != nil {
		return errors.Wrapf(db.Classify(err), "failed to cancel task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 1 {
		return nil
	}

	// Distinguish unknown tasks from tasks that already finished
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return errors.Wrapf(errors.ErrConflict, "task %s is already %s", id, t.Status)
}

// GetRunningTasks returns IN_PROGRESS tasks across all instances
func (s *SQLStore) GetRunningTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+taskSelectColumns+taskFromJoins+`
		WHERE t.status = ?
		ORDER BY t.seq`), string(task.StatusInProgress))
	if err != nil {
		return nil, errors.Wrap(db.Classify(err), "failed to get running tasks")
	}
	return scanTasks(rows)
}

// GetCandidatePendingTasks returns PENDING tasks whose start condition holds at now
func (s *SQLStore) GetCandidatePendingTasks(ctx context.Context, now time.Time) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+taskSelectColumns+taskFromJoins+`
		WHERE t.status = ?
		  AND (
			(t.start_at IS NOT NULL AND t.start_at <= ?)
			OR (t.start_after_id IS NOT NULL AND sa.status = ?)
		  )
		ORDER BY t.seq`), string(task.StatusPending), now.UnixMilli(), string(task.StatusCompleted))
	if err != nil {
		return nil, errors.Wrap(db.Classify(err), "failed to get candidate pending tasks")
	}
	return scanTasks(rows)
}

// CountByStatus returns the number of tasks in each status
func (s *SQLStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count tasks")
	}
	defer rows.Close()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan task count")
		}
		counts[task.Status(status)] = n
	}
	return counts, errors.Wrap(rows.Err(), "error iterating task counts")
}

var _ Store = (*SQLStore)(nil)
