// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for planner-sync. Defaults cover the
// zero-config first run; a config file overrides them per section.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// FolderName is the dedicated application folder created on each
	// provider that supports folder hierarchies.
	FolderName string `toml:"folder_name"`
	// DataDir overrides the platform data directory holding the local
	// database and stored credentials.
	DataDir   string                    `toml:"data_dir"`
	Logging   LoggingConfig             `toml:"logging"`
	Providers map[string]ProviderConfig `toml:"provider"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ProviderConfig holds one provider's OAuth client settings. The scope
// string is fixed at configuration time, not negotiated at runtime.
type ProviderConfig struct {
	ClientID     string `toml:"client_id"`
	Scope        string `toml:"scope"`
	RedirectPort int    `toml:"redirect_port"`
}

// Default values. Scopes are the narrowest grant each provider offers
// for app-owned file storage.
const (
	defaultFolderName   = "Planner"
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"
	defaultRedirectPort = 8931

	defaultBoxScope      = "root_readwrite"
	defaultOneDriveScope = "Files.ReadWrite.AppFolder"
	defaultGDriveScope   = "https://www.googleapis.com/auth/drive.file"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields retain defaults,
// and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		FolderName: defaultFolderName,
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Providers: map[string]ProviderConfig{
			"box":      {Scope: defaultBoxScope, RedirectPort: defaultRedirectPort},
			"onedrive": {Scope: defaultOneDriveScope, RedirectPort: defaultRedirectPort},
			"gdrive":   {Scope: defaultGDriveScope, RedirectPort: defaultRedirectPort},
		},
	}
}

// Provider returns the settings for a provider name, filling in scope and
// port defaults when the config file defined the section only partially.
func (c *Config) Provider(name string) ProviderConfig {
	pc := c.Providers[name]
	defaults := DefaultConfig().Providers[name]
	if pc.Scope == "" {
		pc.Scope = defaults.Scope
	}
	if pc.RedirectPort == 0 {
		pc.RedirectPort = defaultRedirectPort
	}
	return pc
}
