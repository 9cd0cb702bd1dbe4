package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	// AppDirName is the default application directory under $HOME.
	AppDirName = ".pshaw"

	// UserConfigFileName is the TOML config file inside the application directory.
	UserConfigFileName = "config.toml"

	// DefaultHistorySize is the history length used when none is configured.
	DefaultHistorySize = 1000000

	// DefaultShell is used when neither config nor $SHELL names one.
	DefaultShell = "/bin/bash"
)

// UserConfig is the user-facing configuration in config.toml.
type UserConfig struct {
	// BaseDir holds one directory per session (default: ~/.pshaw)
	BaseDir string `toml:"base_dir"`

	// Shell is the shell binary to launch (default: $SHELL, then /bin/bash)
	Shell string `toml:"shell"`

	History HistorySettings `toml:"history"`
	Connect ConnectSettings `toml:"connect"`
	Logs    LogSettings     `toml:"logs"`
}

// HistorySettings controls the shell's history limits.
type HistorySettings struct {
	// Size is exported as HISTSIZE/HISTFILESIZE (bash) or HISTSIZE/SAVEHIST (zsh)
	Size int `toml:"size"`
}

// ConnectSettings controls what the terminal shows when attaching.
type ConnectSettings struct {
	// ClearScreen resets the terminal before replaying the log (default: true)
	ClearScreen *bool `toml:"clear_screen"`

	// Banner prints "=== Connected to session <label> ===" from the shell (default: true)
	Banner *bool `toml:"banner"`
}

// GetClearScreen returns whether to reset the terminal before replay, defaulting to true.
func (c ConnectSettings) GetClearScreen() bool {
	if c.ClearScreen == nil {
		return true
	}
	return *c.ClearScreen
}

// GetBanner returns whether the connect banner is shown, defaulting to true.
func (c ConnectSettings) GetBanner() bool {
	if c.Banner == nil {
		return true
	}
	return *c.Banner
}

// LogSettings configures pshaw's own debug log (not the session logs).
type LogSettings struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   *bool  `toml:"compress"`
}

// GetCompress returns whether rotated debug logs are gzipped, defaulting to true.
func (l LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// GetAppDir returns the directory holding config.toml, state.db and
// debug.log. $PSHAW_HOME overrides ~/.pshaw.
func GetAppDir() (string, error) {
	if dir := os.Getenv("PSHAW_HOME"); dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, AppDirName), nil
}

// GetUserConfigPath returns the config file path. $PSHAW_CONFIG wins.
func GetUserConfigPath() (string, error) {
	if path := os.Getenv("PSHAW_CONFIG"); path != "" {
		return path, nil
	}
	dir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig reads config.toml once and caches the result. A missing
// file yields the zero config. A parse error returns the zero config along
// with the error so callers can warn and carry on.
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	path, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &UserConfig{}
		return userConfigCache, nil
	}

	var cfg UserConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		userConfigCache = &UserConfig{}
		if errors.Is(err, fs.ErrNotExist) {
			return userConfigCache, nil
		}
		return userConfigCache, fmt.Errorf("%s parse error: %w", UserConfigFileName, err)
	}

	userConfigCache = &cfg
	return userConfigCache, nil
}

// ClearUserConfigCache forces the next LoadUserConfig to re-read the file.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

// ResolveBaseDir picks the sessions directory: an explicit override (the
// --base-dir flag), then $PSHAW_HOME, then base_dir from config, then ~/.pshaw.
func ResolveBaseDir(override string) (string, error) {
	if override != "" {
		return expandHome(override)
	}
	if dir := os.Getenv("PSHAW_HOME"); dir != "" {
		return expandHome(dir)
	}
	if cfg, _ := LoadUserConfig(); cfg != nil && cfg.BaseDir != "" {
		return expandHome(cfg.BaseDir)
	}
	return GetAppDir()
}

// ResolveShell picks the shell binary: config, then $SHELL, then /bin/bash.
func ResolveShell() string {
	if cfg, _ := LoadUserConfig(); cfg != nil && cfg.Shell != "" {
		return cfg.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return DefaultShell
}

// GetHistorySize returns the configured history length with the default applied.
func GetHistorySize() int {
	cfg, _ := LoadUserConfig()
	if cfg == nil || cfg.History.Size <= 0 {
		return DefaultHistorySize
	}
	return cfg.History.Size
}

// GetConnectSettings returns the connect settings from config.
func GetConnectSettings() ConnectSettings {
	cfg, _ := LoadUserConfig()
	if cfg == nil {
		return ConnectSettings{}
	}
	return cfg.Connect
}

// GetLogSettings returns debug log settings with defaults applied.
func GetLogSettings() LogSettings {
	cfg, _ := LoadUserConfig()
	var s LogSettings
	if cfg != nil {
		s = cfg.Logs
	}
	if s.Level == "" {
		s.Level = "info"
	}
	if s.Format == "" {
		s.Format = "json"
	}
	if s.MaxSizeMB <= 0 {
		s.MaxSizeMB = 10
	}
	if s.MaxBackups <= 0 {
		s.MaxBackups = 5
	}
	if s.MaxAgeDays <= 0 {
		s.MaxAgeDays = 10
	}
	return s
}

func expandHome(path string) (string, error) {
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return filepath.Abs(path)
}
