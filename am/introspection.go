package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/pulsed/config.toml
	SourceUser        ConfigSource = "user"        // ~/.pulsed/am.toml
	SourceProject     ConfigSource = "project"     // nearest am.toml
	SourceEnvironment ConfigSource = "environment" // PULSED_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // file path or environment variable name
}

// SettingInfo is one effective setting and its origin
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// ConfigIntrospection describes the active configuration
type ConfigIntrospection struct {
	ConfigFile string        `json:"config_file"`
	Settings   []SettingInfo `json:"settings"`
}

// GetConfigIntrospection lists every effective setting with the source that set it
func GetConfigIntrospection() *ConfigIntrospection {
	loadMu.Lock()
	defer loadMu.Unlock()

	v := initViper()
	intro := &ConfigIntrospection{ConfigFile: activeConfigFile}

	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := ConfigSources[key]; ok {
			info = si
		}
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(envKey); set {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}
		intro.Settings = append(intro.Settings, SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return intro
}
