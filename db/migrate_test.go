package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/pulsed/sym"
)

func TestMigrateCreatesSchema(t *testing.T) {
	db, err := OpenWithMigrations("sqlite", filepath.Join(t.TempDir(), "m.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "jobs", "tasks"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, "table %s should exist", table)
	}

	var versions int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 3, versions)
}

func TestDatabaseLogsCarryDBSymbol(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, err := OpenWithMigrations("sqlite", filepath.Join(t.TempDir(), "m.db"), zap.New(core).Sugar())
	require.NoError(t, err)
	defer db.Close()

	require.NotZero(t, logs.FilterMessage("Database opened successfully").Len())
	require.NotZero(t, logs.FilterMessage("Migrations complete").Len())
	for _, entry := range logs.All() {
		var symbols int
		for _, f := range entry.Context {
			if f.Key == "symbol" {
				symbols++
				assert.Equal(t, sym.DB, f.String, "entry %q", entry.Message)
			}
		}
		assert.Equal(t, 1, symbols, "entry %q carries one symbol field", entry.Message)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")

	db, err := OpenWithMigrations("sqlite", path, nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(db, "sqlite", nil))
	require.NoError(t, db.Close())

	db, err = OpenWithMigrations("sqlite", path, nil)
	require.NoError(t, err)
	defer db.Close()

	var versions int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 3, versions)
}

func TestTasksRejectUnknownStatus(t *testing.T) {
	db, err := OpenWithMigrations("sqlite", filepath.Join(t.TempDir(), "m.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO jobs (id, script_path, required_slots, maximum_execution_time, created_at) VALUES ('j', 'pulse.noop', 1, 60, 0)")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO tasks (id, status, job_id, created_at) VALUES ('t', 'RUNNING', 'j', 0)")
	assert.Error(t, err)

	_, err = db.Exec("INSERT INTO tasks (id, status, job_id, created_at) VALUES ('t', 'PENDING', 'j', 0)")
	assert.NoError(t, err)
}

func TestRebind(t *testing.T) {
	q := "UPDATE tasks SET status = ? WHERE id = ? AND status = ?"
	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t, "UPDATE tasks SET status = $1 WHERE id = $2 AND status = $3", Rebind(DriverPostgres, q))

	many := "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	assert.Equal(t, "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)", Rebind(DriverPostgres, many))
}
