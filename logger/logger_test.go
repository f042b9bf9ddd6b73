package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		Logger = nil
		require.NoError(t, Initialize(jsonOutput))
		require.NotNil(t, Logger)
		assert.Equal(t, jsonOutput, JSONOutput)
	}
	Logger = zap.NewNop().Sugar()
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetZapLevel(zapcore.InfoLevel) })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, Level())

	require.NoError(t, SetLevel("WARN"))
	assert.Equal(t, zapcore.WarnLevel, Level())

	err := SetLevel("chatty")
	require.Error(t, err)
	assert.Equal(t, zapcore.WarnLevel, Level(), "failed parse must not change the level")
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
}

func TestNewFileLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "task-1.log")

	log, closeFn, err := NewFileLogger(path, "info")
	require.NoError(t, err)

	log.Infow("job started", FieldTaskID, "task-1")
	log.Debugw("filtered out")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "job started", entry["msg"])
	assert.Equal(t, "task-1", entry[FieldTaskID])
}

func TestNewFileLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := NewFileLogger(filepath.Join(t.TempDir(), "x.log"), "loud")
	assert.Error(t, err)
}

func TestMinimalEncoderRendersSymbolAndKeepsFields(t *testing.T) {
	enc := newMinimalEncoder()
	withCtx := enc.Clone().(*minimalEncoder)
	withCtx.AddString(FieldSymbol, "꩜")

	buf, err := withCtx.EncodeEntry(zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2024, 1, 1, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse.scheduler",
		Message:    "Task admitted",
	}, []zapcore.Field{
		zap.String(FieldTaskID, "3f2a9c1e-0000-4000-8000-000000000000"),
		zap.Int(FieldSlots, 256),
		zap.String("script", "pulse.noop"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "13:04:35")
	assert.Contains(t, out, "꩜")
	assert.Contains(t, out, "p.scheduler")
	assert.Contains(t, out, "Task admitted")
	assert.Contains(t, out, "3f2a9c1e")
	assert.NotContains(t, out, "3f2a9c1e-0000")
	assert.Contains(t, out, "256")
	assert.Contains(t, out, "script=pulse.noop")
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "p.scheduler", abbreviateName("pulse.scheduler"))
	assert.Equal(t, "db", abbreviateName("db"))
}
