package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teranos/pulsed/errors"
)

// EnvPrefix prefixes every environment override, e.g. PULSED_SCHEDULER_AVAILABLE_SLOTS
const EnvPrefix = "PULSED"

// SystemConfigPath is the lowest-precedence config file
var SystemConfigPath = "/etc/pulsed/config.toml"

var (
	loadMu        sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which file set each flattened key during the last load
	ConfigSources = map[string]SourceInfo{}

	// activeConfigFile is the highest-precedence file that was merged
	activeConfigFile string
)

// Load reads and validates the configuration. The result is cached until Reset.
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper decodes configuration from a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads defaults plus one specific file, ignoring every other source
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", configPath)
	}
	return cfg, nil
}

// ActiveConfigFile returns the highest-precedence config file that was merged,
// or "" when only defaults and environment apply
func ActiveConfigFile() string {
	loadMu.Lock()
	defer loadMu.Unlock()
	initViper()
	return activeConfigFile
}

// Reset clears the cached configuration
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
	activeConfigFile = ""
}

// initViper builds the merged Viper instance. Callers hold loadMu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	// .env only fills variables that are not already set; a missing file is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

type configFile struct {
	path   string
	source ConfigSource
}

// configCandidates lists config files in precedence order, lowest first
func configCandidates() []configFile {
	files := []configFile{{SystemConfigPath, SourceSystem}}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, configFile{filepath.Join(home, ".pulsed", "am.toml"), SourceUser})
	}
	if project := findProjectConfig(); project != "" {
		files = append(files, configFile{project, SourceProject})
	}
	return files
}

// findProjectConfig searches for am.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges every existing config file into the config layer.
// Sections merge key by key, so a file that sets one key keeps the others
// from lower sources, and environment variables still win over all files.
func mergeConfigFiles(v *viper.Viper) {
	for _, c := range configCandidates() {
		if _, err := os.Stat(c.path); err != nil {
			continue
		}
		file := viper.New()
		file.SetConfigFile(c.path)
		file.SetConfigType("toml")
		if err := file.ReadInConfig(); err != nil {
			continue
		}

		settings := file.AllSettings()
		if err := v.MergeConfigMap(settings); err != nil {
			continue
		}
		for k := range flatten(settings, "") {
			ConfigSources[k] = SourceInfo{Source: c.source, Path: c.path}
		}
		activeConfigFile = c.path
	}
}

func flatten(settings map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	for k, val := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]interface{}); ok {
			for nk, nv := range flatten(nested, key) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
