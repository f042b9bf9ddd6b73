package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "am.toml")
	cfg := Defaults()
	cfg.Scheduler.AvailableSlots = 32
	cfg.Archive.Backend = ArchiveRedis
	cfg.Archive.RedisAddr = "localhost:6379"

	require.NoError(t, WriteConfig(path, cfg))

	read, err := ReadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, read)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 32, loaded.Scheduler.AvailableSlots)
	assert.Equal(t, "localhost:6379", loaded.Archive.RedisAddr)
}

func TestWriteConfigRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")

	for slots := 1; slots <= 5; slots++ {
		cfg := Defaults()
		cfg.Scheduler.AvailableSlots = slots
		require.NoError(t, WriteConfig(path, cfg))
	}

	slotsIn := func(p string) int {
		cfg, err := ReadConfigFile(p)
		require.NoError(t, err)
		return cfg.Scheduler.AvailableSlots
	}
	assert.Equal(t, 5, slotsIn(path))
	assert.Equal(t, 4, slotsIn(path+".back1"))
	assert.Equal(t, 3, slotsIn(path+".back2"))
	assert.Equal(t, 2, slotsIn(path+".back3"))

	_, err := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}

func TestCreateBackupWithoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, createBackup(path))

	_, err := os.Stat(path + ".back1")
	assert.True(t, os.IsNotExist(err))
}

func TestReadConfigFileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\navailable_slots = 3\n"), 0644))

	cfg, err := ReadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.AvailableSlots)
	assert.Equal(t, SandboxProcess, cfg.Scheduler.Sandbox)
}

func TestUserConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := UserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pulsed", "am.toml"), path)
}
