package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), UserConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("PSHAW_CONFIG", path)
	ClearUserConfigCache()
	t.Cleanup(ClearUserConfigCache)
	return path
}

func TestUserConfig_Decode(t *testing.T) {
	configContent := `
base_dir = "~/sessions"
shell = "/usr/bin/zsh"

[history]
size = 5000

[connect]
clear_screen = false

[logs]
enabled = true
level = "debug"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	var config UserConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if config.BaseDir != "~/sessions" {
		t.Errorf("BaseDir = %s, want ~/sessions", config.BaseDir)
	}
	if config.Shell != "/usr/bin/zsh" {
		t.Errorf("Shell = %s", config.Shell)
	}
	if config.History.Size != 5000 {
		t.Errorf("History.Size = %d, want 5000", config.History.Size)
	}
	if config.Connect.GetClearScreen() {
		t.Error("clear_screen = false should be honoured")
	}
	if !config.Connect.GetBanner() {
		t.Error("banner should default to true")
	}
	if !config.Logs.Enabled || config.Logs.Level != "debug" {
		t.Errorf("Logs = %+v", config.Logs)
	}
	if !config.Logs.GetCompress() {
		t.Error("compress should default to true")
	}
}

func TestLoadUserConfig_Missing(t *testing.T) {
	t.Setenv("PSHAW_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	ClearUserConfigCache()
	t.Cleanup(ClearUserConfigCache)

	cfg, err := LoadUserConfig()
	if err != nil {
		t.Fatalf("missing config should not be an error: %v", err)
	}
	if cfg == nil || cfg.Shell != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
	if GetHistorySize() != DefaultHistorySize {
		t.Errorf("GetHistorySize = %d, want %d", GetHistorySize(), DefaultHistorySize)
	}
}

func TestLoadUserConfig_ParseError(t *testing.T) {
	writeTestConfig(t, "shell = [unterminated")

	cfg, err := LoadUserConfig()
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if cfg == nil {
		t.Fatal("a zero config should accompany the error")
	}
}

func TestLoadUserConfig_Cached(t *testing.T) {
	path := writeTestConfig(t, `shell = "/bin/zsh"`)
	if got := ResolveShell(); got != "/bin/zsh" {
		t.Fatalf("ResolveShell = %s", got)
	}

	if err := os.WriteFile(path, []byte(`shell = "/bin/bash"`), 0600); err != nil {
		t.Fatal(err)
	}
	if got := ResolveShell(); got != "/bin/zsh" {
		t.Errorf("cached value should win until cleared, got %s", got)
	}
	ClearUserConfigCache()
	if got := ResolveShell(); got != "/bin/bash" {
		t.Errorf("after clear ResolveShell = %s", got)
	}
}

func TestResolveShell_Fallbacks(t *testing.T) {
	writeTestConfig(t, "")

	t.Setenv("SHELL", "/opt/bin/zsh")
	if got := ResolveShell(); got != "/opt/bin/zsh" {
		t.Errorf("ResolveShell = %s, want $SHELL", got)
	}
	t.Setenv("SHELL", "")
	if got := ResolveShell(); got != DefaultShell {
		t.Errorf("ResolveShell = %s, want %s", got, DefaultShell)
	}
}

func TestResolveBaseDir(t *testing.T) {
	writeTestConfig(t, `base_dir = "/from/config"`)
	home, _ := os.UserHomeDir()

	if got, _ := ResolveBaseDir("/from/flag"); got != "/from/flag" {
		t.Errorf("flag: got %s", got)
	}
	if got, _ := ResolveBaseDir("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("flag with ~: got %s", got)
	}

	t.Setenv("PSHAW_HOME", "/from/env")
	if got, _ := ResolveBaseDir(""); got != "/from/env" {
		t.Errorf("env: got %s", got)
	}

	t.Setenv("PSHAW_HOME", "")
	if got, _ := ResolveBaseDir(""); got != "/from/config" {
		t.Errorf("config: got %s", got)
	}
}

func TestPshawHomeMadeAbsolute(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	home, _ := os.UserHomeDir()

	t.Setenv("PSHAW_HOME", "rel/home")
	want := filepath.Join(cwd, "rel", "home")
	if got, _ := GetAppDir(); got != want {
		t.Errorf("GetAppDir = %s, want %s", got, want)
	}
	if got, _ := ResolveBaseDir(""); got != want {
		t.Errorf("ResolveBaseDir = %s, want %s", got, want)
	}

	t.Setenv("PSHAW_HOME", "~/ph")
	if got, _ := GetAppDir(); got != filepath.Join(home, "ph") {
		t.Errorf("GetAppDir with ~ = %s", got)
	}
}

func TestGetLogSettings_Defaults(t *testing.T) {
	writeTestConfig(t, "[logs]\nenabled = true\n")

	s := GetLogSettings()
	if !s.Enabled {
		t.Error("enabled should be read from config")
	}
	if s.Level != "info" || s.Format != "json" {
		t.Errorf("level/format defaults: %+v", s)
	}
	if s.MaxSizeMB != 10 || s.MaxBackups != 5 || s.MaxAgeDays != 10 {
		t.Errorf("rotation defaults: %+v", s)
	}
}
