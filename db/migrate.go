package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pulsed/errors"
)

//go:embed sqlite/migrations/*.sql postgres/migrations/*.sql
var migrations embed.FS

func migrationDir(driver string) string {
	if driver == DriverPostgres {
		return "postgres/migrations"
	}
	return "sqlite/migrations"
}

// Migrate runs all pending migrations for the given driver.
// If log is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, driver string, log *zap.SugaredLogger) error {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return err
	}
	log = dbLogger(log)
	dir := migrationDir(driver)

	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// Sort migrations (000_create_schema_migrations.sql runs first)
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	applied := 0
	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		// Check if already applied (schema_migrations created by 000)
		var exists bool
		err := db.QueryRow(Rebind(driver, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)"), version).Scan(&exists)
		if err != nil {
			// Table doesn't exist yet - this must be migration 000
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if log != nil {
				log.Debugw("Skipping migration (already applied)",
					"migration", filename,
					"version", version,
				)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if log != nil {
			log.Infow("Applying migration",
				"migration", filename,
				"version", version,
				"driver", driver,
			)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		// Record migration (000 creates the table, then records itself)
		if _, err := tx.Exec(Rebind(driver, "INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	if log != nil {
		log.Infow("Migrations complete",
			"total_migrations", len(migrationFiles),
			"applied", applied,
		)
	}

	return nil
}

// Rebind rewrites ? placeholders into $1..$n for postgres.
// Queries must not contain literal question marks.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
