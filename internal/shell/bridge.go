// Package shell wires an external interactive shell to a session's history
// and working-directory files. It never interprets shell syntax: it writes
// init files that redirect HISTFILE and install a prompt hook, then hands
// back the argv and environment to exec.
package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/asheshgoplani/pshaw/internal/logging"
)

var shellLog = logging.ForComponent(logging.CompShell)

// ErrUnsupportedShell is returned by Detect for shells without a bridge.
var ErrUnsupportedShell = errors.New("unsupported shell")

// Kind identifies a supported shell family.
type Kind string

const (
	Bash Kind = "bash"
	Zsh  Kind = "zsh"
)

// Environment variables exported into the bound shell.
const (
	EnvSession = "PSHAW_SESSION"
	EnvDir     = "PSHAW_DIR"
)

// Detect classifies a shell binary by its base name ("-bash" login names
// included).
func Detect(shellPath string) (Kind, error) {
	base := strings.TrimPrefix(filepath.Base(shellPath), "-")
	switch base {
	case "bash":
		return Bash, nil
	case "zsh":
		return Zsh, nil
	}
	return "", fmt.Errorf("%w: %s (supported: bash, zsh)", ErrUnsupportedShell, shellPath)
}

// Config describes one shell launch.
type Config struct {
	Shell       string // path to the shell binary
	Label       string
	SessionDir  string
	HistoryPath string
	PwdPath     string
	HistorySize int
	Restore     bool // cd into the pwd marker before the first prompt
	Banner      bool
	HomeDir     string // where the user's rc files live; defaults to $HOME
}

// Launch is the command the controller should start.
type Launch struct {
	Kind Kind
	Path string
	Args []string // argv without argv[0]
	Env  []string // full environment
	// InitFiles lists the files Prepare wrote, for logging and tests.
	InitFiles []string
}

// Prepare writes the init files for cfg.Shell into the session directory
// and returns the command line that activates them.
func Prepare(cfg Config) (*Launch, error) {
	kind, err := Detect(cfg.Shell)
	if err != nil {
		return nil, err
	}
	if cfg.HomeDir == "" {
		cfg.HomeDir, _ = os.UserHomeDir()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000000
	}

	var launch *Launch
	switch kind {
	case Bash:
		launch, err = prepareBash(cfg)
	case Zsh:
		launch, err = prepareZsh(cfg)
	}
	if err != nil {
		return nil, err
	}
	launch.Kind = kind
	launch.Path = cfg.Shell
	launch.Env = append(withoutKeys(os.Environ(), EnvSession, EnvDir, "ZDOTDIR"), launch.Env...)
	launch.Env = append(launch.Env, EnvSession+"="+cfg.Label, EnvDir+"="+cfg.SessionDir)

	shellLog.Debug("shell_prepared",
		slog.String("label", cfg.Label),
		slog.String("kind", string(kind)),
		slog.Bool("restore", cfg.Restore),
		slog.Any("init_files", launch.InitFiles))
	return launch, nil
}

// restoreBlock is POSIX sh shared by both shells: cd into the marker
// directory when it still exists.
func restoreBlock(pwdPath string) string {
	q := Quote(pwdPath)
	return "if [ -s " + q + " ]; then\n" +
		"  __pshaw_dir=$(cat " + q + ")\n" +
		"  [ -d \"$__pshaw_dir\" ] && builtin cd -- \"$__pshaw_dir\"\n" +
		"  unset __pshaw_dir\n" +
		"fi\n"
}

func bannerLine(label string) string {
	return "printf '%s\\n' " + Quote("=== Connected to session "+label+" ===") + "\n"
}

// Quote single-quotes s for POSIX shells.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func writeInit(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func withoutKeys(env []string, keys ...string) []string {
	out := make([]string, 0, len(env))
outer:
	for _, kv := range env {
		for _, k := range keys {
			if strings.HasPrefix(kv, k+"=") {
				continue outer
			}
		}
		out = append(out, kv)
	}
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }
