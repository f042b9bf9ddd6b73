package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/pulsed/errors"
)

func TestOpenSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pulsed.db")

	db, err := Open("sqlite", dbPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	db, err := Open("postgres", "", nil)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestNormalizeDriver(t *testing.T) {
	for in, want := range map[string]string{
		"":           DriverSQLite,
		"sqlite":     DriverSQLite,
		"sqlite3":    DriverSQLite,
		"postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
		"pg":         DriverPostgres,
	} {
		got, err := NormalizeDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeDriver("mysql")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestIsDatabaseClosed(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = db.Ping()
	require.Error(t, err)
	assert.True(t, IsDatabaseClosed(err))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "tick")))
	assert.False(t, IsDatabaseClosed(nil))
	assert.False(t, IsDatabaseClosed(errors.New("disk full")))
}

func TestClassifyMarksOutagesOnly(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Exec("SELECT 1")
	require.Error(t, err)
	classified := errors.Wrap(Classify(err), "failed to get running tasks")
	assert.True(t, errors.IsServiceUnavailableError(classified))

	assert.True(t, errors.IsServiceUnavailableError(Classify(errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"))))
	assert.True(t, errors.IsServiceUnavailableError(Classify(errors.New("database is locked"))))

	syntax := errors.New(`near "SELEC": syntax error`)
	assert.Same(t, syntax, Classify(syntax))
	assert.Nil(t, Classify(nil))
}
