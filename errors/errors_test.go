package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestDetailsSurviveWrapping(t *testing.T) {
	err := WithDetail(New("update failed"), "task_id: t-1")
	err = Wrap(err, "close task")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "task_id: t-1", details[0])
}

func TestNotFound(t *testing.T) {
	err := NewNotFoundError("task %s", "abc")
	assert.True(t, IsNotFoundError(err))
	assert.True(t, IsNotFoundError(fmt.Errorf("lookup: %w", err)))
	assert.Contains(t, err.Error(), "task abc")

	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("something else")))
}

func TestInvalidRequest(t *testing.T) {
	err := NewInvalidRequestError("requiredSlots must be positive, got %d", 0)
	assert.True(t, IsInvalidRequestError(err))
	assert.False(t, IsNotFoundError(err))
}

func TestWrapServiceUnavailable(t *testing.T) {
	cause := New("connection refused")
	err := WrapServiceUnavailable(cause, "ping store")

	assert.True(t, IsServiceUnavailableError(err))
	assert.Contains(t, err.Error(), "ping store")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMarkKeepsMessage(t *testing.T) {
	cause := New("database is locked")
	err := Wrap(Mark(cause, ErrServiceUnavailable), "close task")

	assert.True(t, IsServiceUnavailableError(err))
	assert.Equal(t, "close task: database is locked", err.Error())
}

func TestIsConflictError(t *testing.T) {
	err := Wrapf(ErrConflict, "task %s is already %s", "t-1", "COMPLETED")
	assert.True(t, IsConflictError(err))
	assert.False(t, IsConflictError(nil))
}
