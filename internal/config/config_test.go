package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPopulatesBuiltins(t *testing.T) {
	cfg := Default()
	if cfg.AnisetteURL != DefaultAnisetteURL {
		t.Errorf("AnisetteURL = %q, want %q", cfg.AnisetteURL, DefaultAnisetteURL)
	}
	if cfg.AnisetteURLV3 != DefaultAnisetteURLV3 {
		t.Errorf("AnisetteURLV3 = %q, want %q", cfg.AnisetteURLV3, DefaultAnisetteURLV3)
	}
	if cfg.MacOSSerial != DefaultMacOSSerial {
		t.Errorf("MacOSSerial = %q, want %q", cfg.MacOSSerial, DefaultMacOSSerial)
	}
	if cfg.ConfigurationPath == "" {
		t.Error("expected a non-empty default ConfigurationPath")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnisetteURL != DefaultAnisetteURL {
		t.Errorf("AnisetteURL = %q, want default", cfg.AnisetteURL)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnisetteURLV3 != DefaultAnisetteURLV3 {
		t.Errorf("AnisetteURLV3 = %q, want default", cfg.AnisetteURLV3)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := "anisette_url: https://custom.example/ani\nmacos_serial: C02CUSTOM123\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnisetteURL != "https://custom.example/ani" {
		t.Errorf("AnisetteURL = %q, want custom value", cfg.AnisetteURL)
	}
	if cfg.MacOSSerial != "C02CUSTOM123" {
		t.Errorf("MacOSSerial = %q, want custom value", cfg.MacOSSerial)
	}
	// Fields absent from the file keep their Default() values.
	if cfg.AnisetteURLV3 != DefaultAnisetteURLV3 {
		t.Errorf("AnisetteURLV3 = %q, want default to survive partial overrides", cfg.AnisetteURLV3)
	}
}

func TestLoadJSONCOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	jsoncBody := `{
		// trailing comma and comments are fine, this is jsonc
		"anisette_url_v3": "https://custom.example/v3",
	}`
	if err := os.WriteFile(path, []byte(jsoncBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnisetteURLV3 != "https://custom.example/v3" {
		t.Errorf("AnisetteURLV3 = %q, want custom value", cfg.AnisetteURLV3)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ASAUTH_ANISETTE_URL", "https://env.example/ani")
	t.Setenv("ASAUTH_ANISETTE_URL_V3", "https://env.example/v3")
	t.Setenv("ASAUTH_CONFIGURATION_PATH", "/tmp/env-config-path")
	t.Setenv("ASAUTH_MACOS_SERIAL", "C02ENVOVERRIDE")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnisetteURL != "https://env.example/ani" {
		t.Errorf("AnisetteURL = %q, want env override", cfg.AnisetteURL)
	}
	if cfg.AnisetteURLV3 != "https://env.example/v3" {
		t.Errorf("AnisetteURLV3 = %q, want env override", cfg.AnisetteURLV3)
	}
	if cfg.ConfigurationPath != "/tmp/env-config-path" {
		t.Errorf("ConfigurationPath = %q, want env override", cfg.ConfigurationPath)
	}
	if cfg.MacOSSerial != "C02ENVOVERRIDE" {
		t.Errorf("MacOSSerial = %q, want env override", cfg.MacOSSerial)
	}
}

func TestEnvOverridesWinOverFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("anisette_url: https://file.example/ani\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ASAUTH_ANISETTE_URL", "https://env.example/ani")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnisetteURL != "https://env.example/ani" {
		t.Errorf("AnisetteURL = %q, want env override to win over file value", cfg.AnisetteURL)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("anisette_url: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error parsing malformed YAML")
	}
}

func TestPathReturnsUnderUserConfigDir(t *testing.T) {
	path, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Path() base = %q, want config.yaml", filepath.Base(path))
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		t.Skip("no user config dir on this platform")
	}
	want := filepath.Join(dir, "asauth", "config.yaml")
	if path != want {
		t.Errorf("Path() = %q, want %q", path, want)
	}
}
