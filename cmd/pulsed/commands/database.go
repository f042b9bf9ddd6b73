package commands

import (
	"database/sql"

	"github.com/teranos/pulsed/am"
	"github.com/teranos/pulsed/db"
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
	"github.com/teranos/pulsed/pulse/store"
)

// openStore opens and migrates the configured database and wraps it in a store.
// The caller closes the returned *sql.DB.
func openStore(cfg *am.Config) (*sql.DB, *store.SQLStore, error) {
	driver, err := db.NormalizeDriver(cfg.Database.Driver)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.OpenWithMigrations(driver, cfg.DataSource(), logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	return database, store.NewSQLStore(database, driver), nil
}

// loadConfig loads the configuration, wrapping errors the same way for every command
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}
