package am

import (
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
)

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.NewInvalidRequestError("database.dsn is required for the postgres driver")
		}
	default:
		return errors.NewInvalidRequestError("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	// Zero slots is valid: the instance admits nothing
	if c.Scheduler.AvailableSlots < 0 {
		return errors.NewInvalidRequestError("scheduler.available_slots must be >= 0, got %d", c.Scheduler.AvailableSlots)
	}
	if c.Scheduler.TickIntervalMS <= 0 {
		return errors.NewInvalidRequestError("scheduler.tick_interval_ms must be > 0, got %d", c.Scheduler.TickIntervalMS)
	}
	if c.Scheduler.LogsPath == "" {
		return errors.NewInvalidRequestError("scheduler.logs_path cannot be empty")
	}
	if _, err := logger.ParseLevel(c.Scheduler.LogLevel); err != nil {
		return errors.Wrap(err, "scheduler.log_level")
	}
	switch c.Scheduler.Sandbox {
	case SandboxProcess, SandboxInProcess:
	default:
		return errors.NewInvalidRequestError("scheduler.sandbox must be process or inprocess, got %q", c.Scheduler.Sandbox)
	}

	switch c.Archive.Backend {
	case "", ArchiveNone:
	case ArchiveFile:
		if c.Archive.Dir == "" {
			return errors.NewInvalidRequestError("archive.dir is required for the file backend")
		}
	case ArchiveRedis:
		if c.Archive.RedisAddr == "" {
			return errors.NewInvalidRequestError("archive.redis_addr is required for the redis backend")
		}
	default:
		return errors.NewInvalidRequestError("archive.backend must be none, file or redis, got %q", c.Archive.Backend)
	}
	if c.Archive.RedisTTLHours < 0 {
		return errors.NewInvalidRequestError("archive.redis_ttl_hours must be >= 0, got %d", c.Archive.RedisTTLHours)
	}
	if c.Archive.UploadsPerSecond < 0 {
		return errors.NewInvalidRequestError("archive.uploads_per_second must be >= 0, got %f", c.Archive.UploadsPerSecond)
	}
	return nil
}
