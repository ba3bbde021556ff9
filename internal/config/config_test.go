package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "Planner", cfg.FolderName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
	assert.Equal(t, "root_readwrite", cfg.Providers["box"].Scope)
	assert.Contains(t, cfg.Providers["gdrive"].Scope, "drive.file")
	assert.Equal(t, 8931, cfg.Providers["onedrive"].RedirectPort)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
folder_name = "MyPlanner"

[logging]
level = "debug"

[provider.box]
client_id = "box-client"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "MyPlanner", cfg.FolderName)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "box-client", cfg.Providers["box"].ClientID)
	// Unset sections keep their defaults.
	assert.Equal(t, "auto", cfg.Logging.Format)
}

func TestLoad_UnknownKeyFatal(t *testing.T) {
	path := writeConfig(t, `folder_nmae = "typo"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "folder_nmae")
}

func TestLoad_InvalidLevel(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "loud"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestLoad_UnknownProviderSection(t *testing.T) {
	path := writeConfig(t, `
[provider.dropbox]
client_id = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dropbox")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "Planner", cfg.FolderName)
}

func TestLoadOrDefault_ExistingFileStillValidated(t *testing.T) {
	path := writeConfig(t, `folder_name = ""`)

	_, err := LoadOrDefault(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder_name")
}

func TestProvider_FillsPartialSection(t *testing.T) {
	path := writeConfig(t, `
[provider.onedrive]
client_id = "od-client"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	pc := cfg.Provider("onedrive")
	assert.Equal(t, "od-client", pc.ClientID)
	assert.Equal(t, "Files.ReadWrite.AppFolder", pc.Scope)
	assert.Equal(t, 8931, pc.RedirectPort)
}

func TestPaths_DataDirOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/planner-test"

	assert.Equal(t, "/tmp/planner-test", cfg.EffectiveDataDir())
	assert.Equal(t, filepath.Join("/tmp/planner-test", "tokens"), cfg.TokenDir())
	assert.Equal(t, filepath.Join("/tmp/planner-test", "planner.db"), cfg.DatabasePath())
}

func TestPaths_XDGConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	if dir := DefaultConfigDir(); dir != "" {
		assert.Contains(t, dir, appName)
	}
	if dir := DefaultDataDir(); dir != "" {
		assert.Contains(t, dir, appName)
	}
}
