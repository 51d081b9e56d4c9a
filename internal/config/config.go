// Package config loads the asauth configuration file: anisette helper URLs,
// the on-disk state directory, and the emulated Mac serial number.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAnisetteURL is a community-run RemoteADIv1 helper.
	DefaultAnisetteURL = "https://ani.sidestore.io"
	// DefaultAnisetteURLV3 is a community-run RemoteADIv3 helper.
	DefaultAnisetteURLV3 = "https://ani.f1sh.me"
	// DefaultMacOSSerial is the sentinel serial number Apple accepts for
	// machine-scoped (non-user) anisette requests.
	DefaultMacOSSerial = "0"
)

// Config is the asauth configuration, loadable from YAML or JSONC and
// overridable by environment variables of the same name prefixed ASAUTH_.
type Config struct {
	AnisetteURL       string `yaml:"anisette_url"`
	AnisetteURLV3     string `yaml:"anisette_url_v3"`
	ConfigurationPath string `yaml:"configuration_path"`
	MacOSSerial       string `yaml:"macos_serial"`
}

// Path returns the default configuration file location,
// $XDG_CONFIG_HOME/asauth/config.yaml (or its per-OS equivalent).
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "asauth", "config.yaml"), nil
}

// Default returns a Config populated with built-in defaults and a
// configuration path under the user's config directory.
func Default() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Config{
		AnisetteURL:       DefaultAnisetteURL,
		AnisetteURLV3:     DefaultAnisetteURLV3,
		ConfigurationPath: filepath.Join(dir, "asauth"),
		MacOSSerial:       DefaultMacOSSerial,
	}
}

// Load reads path (YAML, or JSON-with-comments when the extension is
// .json/.jsonc) over Default, then applies ASAUTH_* environment overrides.
// A missing file is not an error: Default plus environment overrides is a
// valid configuration for first run.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to environment overlay
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			switch filepath.Ext(path) {
			case ".json", ".jsonc":
				data = jsonc.ToJSON(data)
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
				}
			default:
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
				}
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASAUTH_ANISETTE_URL"); v != "" {
		cfg.AnisetteURL = v
	}
	if v := os.Getenv("ASAUTH_ANISETTE_URL_V3"); v != "" {
		cfg.AnisetteURLV3 = v
	}
	if v := os.Getenv("ASAUTH_CONFIGURATION_PATH"); v != "" {
		cfg.ConfigurationPath = v
	}
	if v := os.Getenv("ASAUTH_MACOS_SERIAL"); v != "" {
		cfg.MacOSSerial = v
	}
}
