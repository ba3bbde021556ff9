package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Valid logging levels and formats.
var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal: silently ignoring a typo in a
// config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the
// zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks field values that TOML decoding cannot.
func Validate(cfg *Config) error {
	if cfg.FolderName == "" {
		return errors.New("folder_name must not be empty")
	}
	if !contains(validLogLevels, cfg.Logging.Level) {
		return fmt.Errorf("invalid logging.level %q (valid: %s)",
			cfg.Logging.Level, strings.Join(validLogLevels, ", "))
	}
	if !contains(validLogFormats, cfg.Logging.Format) {
		return fmt.Errorf("invalid logging.format %q (valid: %s)",
			cfg.Logging.Format, strings.Join(validLogFormats, ", "))
	}

	for name, pc := range cfg.Providers {
		switch name {
		case "box", "onedrive", "gdrive":
		default:
			return fmt.Errorf("unknown provider section %q", name)
		}
		if pc.RedirectPort < 0 || pc.RedirectPort > 65535 {
			return fmt.Errorf("provider %s: invalid redirect_port %d", name, pc.RedirectPort)
		}
	}

	return nil
}

func contains(valid []string, v string) bool {
	for _, s := range valid {
		if s == v {
			return true
		}
	}
	return false
}
