package commands

import (
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/pulsed/pulse/task"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Local().Format(timeLayout)
}

func formatRecurrence(r *int64) string {
	if r == nil {
		return "-"
	}
	return (time.Duration(*r) * time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// statusText colours a status for terminal tables
func statusText(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return pterm.LightGreen(string(s))
	case task.StatusFailed:
		return pterm.LightRed(string(s))
	case task.StatusInProgress:
		return pterm.LightCyan(string(s))
	case task.StatusCanceled:
		return pterm.Yellow(string(s))
	default:
		return pterm.Gray(string(s))
	}
}

func jobRows(jobs []*task.Job) pterm.TableData {
	data := pterm.TableData{{"ID", "SCRIPT", "SLOTS", "MAX EXEC", "CREATED"}}
	for _, j := range jobs {
		created := j.CreatedAt
		data = append(data, []string{
			j.ID,
			j.ScriptPath,
			pterm.Sprintf("%d", j.RequiredSlots),
			j.Timeout().String(),
			formatTime(&created),
		})
	}
	return data
}

func taskRows(tasks []*task.Task) pterm.TableData {
	data := pterm.TableData{{"ID", "STATUS", "JOB", "START", "AFTER", "EVERY", "RUN BY", "STARTED", "ENDED"}}
	for _, t := range tasks {
		data = append(data, []string{
			t.ID,
			statusText(t.Status),
			t.JobID,
			formatTime(t.StartAt),
			orDash(t.StartAfterID),
			formatRecurrence(t.Recurrence),
			orDash(t.RunBy),
			formatTime(t.StartedAt),
			formatTime(t.EndedAt),
		})
	}
	return data
}

func renderTable(data pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
