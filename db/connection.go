package db

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLite and Postgres pool settings
const (
	SQLiteBusyTimeoutMS     = 5000
	PostgresMaxOpenConns    = 25
	PostgresMaxIdleConns    = 25
	PostgresConnMaxLifetime = 5 * time.Minute
)

// NormalizeDriver maps config spellings onto database/sql driver names.
func NormalizeDriver(driver string) (string, error) {
	switch driver {
	case "", "sqlite", DriverSQLite:
		return DriverSQLite, nil
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", errors.NewInvalidRequestError("unsupported database driver %q", driver)
	}
}

// Open opens the task database.
// dsn is a file path for sqlite and a connection string for postgres.
// If log is provided, logs database operations; otherwise operates silently.
func Open(driver, dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	log = dbLogger(log)
	if driver == DriverPostgres {
		return openPostgres(dsn, log)
	}
	return openSQLite(dsn, log)
}

func openSQLite(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log != nil {
		log.Debugw("Opening database", "driver", DriverSQLite, "path", path)
	}
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	if log != nil {
		log.Infow("Database opened successfully",
			"driver", DriverSQLite,
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

func openPostgres(dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.NewInvalidRequestError("postgres requires a DSN")
	}
	if log != nil {
		log.Debugw("Opening database", "driver", DriverPostgres)
	}

	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	db.SetMaxOpenConns(PostgresMaxOpenConns)
	db.SetMaxIdleConns(PostgresMaxIdleConns)
	db.SetConnMaxLifetime(PostgresConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapServiceUnavailable(err, "failed to reach postgres")
	}

	if log != nil {
		log.Infow("Database opened successfully",
			"driver", DriverPostgres,
			"max_open_conns", PostgresMaxOpenConns,
		)
	}
	return db, nil
}

// dbLogger tags l with the DB symbol. nil stays nil.
func dbLogger(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return nil
	}
	return logger.AddDBSymbol(l)
}

// OpenWithMigrations opens the database and applies pending migrations.
func OpenWithMigrations(driver, dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(driver, dsn, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if err := Migrate(db, driver, log); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}
