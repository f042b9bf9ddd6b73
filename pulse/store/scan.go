package store

import (
	"database/sql"
	"time"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// taskSelectColumns is the column list scanTask expects, in order.
// It selects the task (t), its job (j) and its startAfter task (sa).
const taskSelectColumns = `
	t.id, t.status, t.run_by, t.started_at, t.ended_at, t.parent_id,
	t.job_id, t.metadata, t.start_at, t.recurrence, t.start_after_id, t.created_at,
	j.id, j.script_path, j.required_slots, j.maximum_execution_time, j.created_at,
	sa.id, sa.status, sa.ended_at`

const taskFromJoins = `
	FROM tasks t
	JOIN jobs j ON j.id = t.job_id
	LEFT JOIN tasks sa ON sa.id = t.start_after_id`

// taskScanArgs holds the nullable columns of a task row
type taskScanArgs struct {
	RunBy        sql.NullString
	StartedAt    sql.NullInt64
	EndedAt      sql.NullInt64
	ParentID     sql.NullString
	Metadata     sql.NullString
	StartAt      sql.NullInt64
	Recurrence   sql.NullInt64
	StartAfterID sql.NullString
	CreatedAt    int64

	JobCreatedAt int64

	AfterID      sql.NullString
	AfterStatus  sql.NullString
	AfterEndedAt sql.NullInt64
}

func taskScanTargets(t *task.Task, job *task.Job, args *taskScanArgs) []interface{} {
	return []interface{}{
		&t.ID, &t.Status, &args.RunBy, &args.StartedAt, &args.EndedAt, &args.ParentID,
		&t.JobID, &args.Metadata, &args.StartAt, &args.Recurrence, &args.StartAfterID, &args.CreatedAt,
		&job.ID, &job.ScriptPath, &job.RequiredSlots, &job.MaximumExecutionTime, &args.JobCreatedAt,
		&args.AfterID, &args.AfterStatus, &args.AfterEndedAt,
	}
}

func processTaskScanArgs(t *task.Task, job *task.Job, args *taskScanArgs) error {
	t.RunBy = args.RunBy.String
	t.StartedAt = fromMillis(args.StartedAt)
	t.EndedAt = fromMillis(args.EndedAt)
	t.ParentID = args.ParentID.String
	t.StartAt = fromMillis(args.StartAt)
	t.StartAfterID = args.StartAfterID.String
	t.CreatedAt = time.UnixMilli(args.CreatedAt)
	if args.Recurrence.Valid {
		r := args.Recurrence.Int64
		t.Recurrence = &r
	}

	meta, err := task.ParseMetadata(args.Metadata.String)
	if err != nil {
		return errors.Wrapf(err, "failed to parse metadata for task %s", t.ID)
	}
	t.Metadata = meta

	job.CreatedAt = time.UnixMilli(args.JobCreatedAt)
	t.Job = job

	if args.AfterID.Valid {
		t.StartAfter = &task.Task{
			ID:      args.AfterID.String,
			Status:  task.Status(args.AfterStatus.String),
			EndedAt: fromMillis(args.AfterEndedAt),
		}
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t := &task.Task{}
		job := &task.Job{}
		args := &taskScanArgs{}
		if err := rows.Scan(taskScanTargets(t, job, args)...); err != nil {
			return nil, errors.Wrap(err, "failed to scan task")
		}
		if err := processTaskScanArgs(t, job, args); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating tasks")
	}
	return tasks, nil
}

func toMillis(ts *time.Time) sql.NullInt64 {
	if ts == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ts.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := time.UnixMilli(v.Int64)
	return &ts
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
