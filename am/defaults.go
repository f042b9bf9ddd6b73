package am

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "pulsed.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("scheduler.available_slots", 512)
	v.SetDefault("scheduler.tick_interval_ms", 1000)
	v.SetDefault("scheduler.logs_path", "logs")
	v.SetDefault("scheduler.log_level", "info")
	v.SetDefault("scheduler.sandbox", SandboxProcess)
	v.SetDefault("scheduler.worker_command", "")

	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.redis_addr", "")
	v.SetDefault("archive.redis_key_prefix", "pulsed:logs:")
	v.SetDefault("archive.redis_ttl_hours", 24*30)
	v.SetDefault("archive.uploads_per_second", 0)
}

// BindSensitiveEnvVars binds connection strings under their conventional names as well
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "PULSED_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("archive.redis_addr", "PULSED_ARCHIVE_REDIS_ADDR", "REDIS_ADDR")
}

// Defaults returns a config holding only built-in defaults
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always decode
		panic(err)
	}
	return cfg
}
