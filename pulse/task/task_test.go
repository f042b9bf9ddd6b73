package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/internal/util"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())

	assert.True(t, IsValidStatus("IN_PROGRESS"))
	assert.False(t, IsValidStatus("running"))
}

func TestNewJobValidates(t *testing.T) {
	job, err := NewJob("pulse.noop", 256, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 10*time.Second, job.Timeout())

	_, err = NewJob("", 1, 10)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = NewJob("pulse.noop", 0, 10)
	assert.True(t, errors.IsInvalidRequestError(err))

	// Non-positive execution time is allowed: it forces an immediate timeout
	_, err = NewJob("pulse.noop", 1, -1)
	assert.NoError(t, err)
}

func TestNewTaskRequiresExactlyOneStartCondition(t *testing.T) {
	now := time.Now()

	_, err := NewTask("job", &now, "", nil, Metadata{})
	assert.NoError(t, err)

	_, err = NewTask("job", nil, "other", nil, Metadata{})
	assert.NoError(t, err)

	_, err = NewTask("job", nil, "", nil, Metadata{})
	assert.True(t, errors.IsInvalidRequestError(err), "neither set")

	_, err = NewTask("job", &now, "other", nil, Metadata{})
	assert.True(t, errors.IsInvalidRequestError(err), "both set")

	_, err = NewTask("job", &now, "", util.Ptr(int64(-5)), Metadata{})
	assert.True(t, errors.IsInvalidRequestError(err), "negative recurrence")
}

func TestTimedOut(t *testing.T) {
	now := time.Now()
	started := now.Add(-5 * time.Second)

	running := &Task{Status: StatusInProgress, StartedAt: &started, Job: &Job{MaximumExecutionTime: 10}}
	assert.False(t, running.TimedOut(now))
	assert.True(t, running.TimedOut(now.Add(6*time.Second)))

	// Exactly at the limit is not yet over it
	assert.False(t, running.TimedOut(now.Add(5*time.Second)))

	justStarted := &Task{Status: StatusInProgress, StartedAt: &now, Job: &Job{MaximumExecutionTime: -1}}
	assert.True(t, justStarted.TimedOut(now.Add(time.Millisecond)))

	unresolved := &Task{StartedAt: &started}
	assert.False(t, unresolved.TimedOut(now))
}

func TestMetadataPreservesUnknownKeys(t *testing.T) {
	raw := `{"lastCompletedAt":"2024-03-01T10:00:00Z","command":"echo hi","retries":3}`

	m, err := ParseMetadata(raw)
	require.NoError(t, err)
	require.NotNil(t, m.LastCompletedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), m.LastCompletedAt.UTC())

	cmd, ok := m.String("command")
	require.True(t, ok)
	assert.Equal(t, "echo hi", cmd)

	retries, ok := m.String("retries")
	require.True(t, ok)
	assert.Equal(t, "3", retries)

	encoded, err := m.Encode()
	require.NoError(t, err)

	var roundTrip map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(encoded), &roundTrip))
	assert.Equal(t, "echo hi", roundTrip["command"])
	assert.EqualValues(t, 3, roundTrip["retries"])
	assert.Equal(t, "2024-03-01T10:00:00Z", roundTrip["lastCompletedAt"])
}

func TestMetadataNullAndEmpty(t *testing.T) {
	m, err := ParseMetadata("")
	require.NoError(t, err)
	assert.Nil(t, m.LastCompletedAt)

	m, err = ParseMetadata(`{"lastCompletedAt":null}`)
	require.NoError(t, err)
	assert.Nil(t, m.LastCompletedAt)

	encoded, err := m.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastCompletedAt":null}`, encoded)

	_, err = ParseMetadata(`[1,2]`)
	assert.Error(t, err)
}

func TestMetadataAcceptsEncodedString(t *testing.T) {
	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"job":"j","metadata":"{\"dir\":\"logs\"}"}`), &task))

	dir, ok := task.Metadata.String("dir")
	require.True(t, ok)
	assert.Equal(t, "logs", dir)
}

func TestMetadataSetGuardsLastCompletedAt(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Set("duration", "2s"))
	assert.Error(t, m.Set("lastCompletedAt", "now"))

	var d string
	require.NoError(t, m.Decode("duration", &d))
	assert.Equal(t, "2s", d)
	assert.True(t, errors.IsNotFoundError(m.Decode("missing", &d)))
}
