// Package am loads the pulsed configuration.
//
// Sources, lowest precedence first: built-in defaults, /etc/pulsed/config.toml,
// ~/.pulsed/am.toml, the nearest am.toml found walking up from the working
// directory, then PULSED_* environment variables. A .env file in the working
// directory is loaded into the environment before anything else.
package am

import (
	"fmt"
	"time"
)

const (
	DefaultDirPermissions = 0750

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SandboxProcess   = "process"
	SandboxInProcess = "inprocess"

	ArchiveNone  = "none"
	ArchiveFile  = "file"
	ArchiveRedis = "redis"
)

// Config represents the pulsed configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler"`
	Archive   ArchiveConfig   `mapstructure:"archive" toml:"archive"`
}

// DatabaseConfig selects the task store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path" toml:"path"`     // sqlite file
	DSN    string `mapstructure:"dsn" toml:"dsn"`       // postgres connection string
}

// SchedulerConfig configures one scheduler instance
type SchedulerConfig struct {
	AvailableSlots int    `mapstructure:"available_slots" toml:"available_slots"`
	TickIntervalMS int    `mapstructure:"tick_interval_ms" toml:"tick_interval_ms"`
	LogsPath       string `mapstructure:"logs_path" toml:"logs_path"` // per-task execution logs
	LogLevel       string `mapstructure:"log_level" toml:"log_level"`
	Sandbox        string `mapstructure:"sandbox" toml:"sandbox"`               // process or inprocess
	WorkerCommand  string `mapstructure:"worker_command" toml:"worker_command"` // empty = own executable + "worker"
}

// ArchiveConfig configures where closed task logs are shipped
type ArchiveConfig struct {
	Backend          string  `mapstructure:"backend" toml:"backend"` // none, file or redis
	Dir              string  `mapstructure:"dir" toml:"dir"`
	RedisAddr        string  `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisKeyPrefix   string  `mapstructure:"redis_key_prefix" toml:"redis_key_prefix"`
	RedisTTLHours    int     `mapstructure:"redis_ttl_hours" toml:"redis_ttl_hours"` // 0 = keep forever
	UploadsPerSecond float64 `mapstructure:"uploads_per_second" toml:"uploads_per_second"`
}

// TickInterval returns the configured tick interval as a duration
func (s SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMS) * time.Millisecond
}

// RedisTTL returns the archive key expiry
func (a ArchiveConfig) RedisTTL() time.Duration {
	return time.Duration(a.RedisTTLHours) * time.Hour
}

// DataSource returns what the database driver should open
func (c *Config) DataSource() string {
	if c.Database.Driver == DriverPostgres {
		return c.Database.DSN
	}
	if c.Database.Path == "" {
		return "pulsed.db"
	}
	return c.Database.Path
}

// String returns a short representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Scheduler: {Slots: %d, Tick: %dms, Sandbox: %s}, Archive: %s}",
		c.Database.Driver, c.Scheduler.AvailableSlots, c.Scheduler.TickIntervalMS, c.Scheduler.Sandbox, c.Archive.Backend)
}
