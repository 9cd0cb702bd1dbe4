package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/asheshgoplani/pshaw/internal/logging"
	"github.com/asheshgoplani/pshaw/internal/session"
	"github.com/asheshgoplani/pshaw/internal/statedb"
)

const Version = "0.1.0"

var cliLog = logging.ForComponent(logging.CompCLI)

// init sets up the color profile used for diagnostics and list output
func init() {
	initColorProfile()
}

// initColorProfile honours PSHAW_COLOR and otherwise lets termenv detect the
// terminal. Diagnostics go to stderr, so detection looks at stderr.
func initColorProfile() {
	// PSHAW_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("PSHAW_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stderr).EnvColorProfile())
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app carries the process's streams and global flags through the commands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	baseDir string
	debug   bool

	// status is the shell's exit status after create or connect.
	status int
	// runErr is set when a command body fails, as opposed to cobra
	// rejecting the command line.
	runErr error

	journal *statedb.StateDB
}

// run executes one pshaw invocation and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return a.status
	case a.runErr != nil:
		a.printError(a.runErr)
		return session.ExitCode(a.runErr)
	default:
		fmt.Fprintln(stderr, errorStyle.Render("pshaw: "+err.Error()))
		fmt.Fprintln(stderr, hintStyle.Render("Run 'pshaw --help' for usage."))
		return session.ExitUsage
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pshaw",
		Short: "Durable named shell sessions",
		Long: `pshaw gives a shell session a name. Its scrollback, command history and
working directory live under the base directory and survive the shell, so
"pshaw connect <label>" picks up where the last shell left off.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetVersionTemplate("pshaw v{{.Version}}\n")
	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%s: %w", c.CommandPath(), err)
	})
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.baseDir, "base-dir", "", "directory holding the sessions (default $PSHAW_HOME or ~/.pshaw)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "write debug logs to "+logging.LogFileName)

	root.AddCommand(
		a.createCommand(),
		a.connectCommand(),
		a.listCommand(),
		a.tailCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "pshaw v%s\n", Version)
			return nil
		},
	}
}

// setup loads config and starts logging before any command runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if _, err := session.LoadUserConfig(); err != nil {
		fmt.Fprintln(a.stderr, warnStyle.Render("pshaw: warning: "+err.Error()))
	}

	settings := session.GetLogSettings()
	appDir, err := session.GetAppDir()
	if err != nil {
		return a.fail(err)
	}
	level := settings.Level
	if a.debug || os.Getenv("PSHAW_DEBUG") != "" {
		level = "debug"
	}
	logging.Init(logging.Config{
		LogDir:     appDir,
		Enabled:    settings.Enabled || a.debug || os.Getenv("PSHAW_DEBUG") != "",
		Level:      level,
		Format:     settings.Format,
		MaxSizeMB:  settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		MaxAgeDays: settings.MaxAgeDays,
		Compress:   settings.GetCompress(),
	})
	cliLog.Debug("command_start", slog.String("command", cmd.CommandPath()), slog.Any("args", args))
	return nil
}

// fail records err as a command failure and returns it to cobra.
func (a *app) fail(err error) error {
	if err != nil {
		a.runErr = err
	}
	return err
}

// controller builds a session controller from flags and config. The journal
// is optional: if it cannot be opened the commands run without it.
func (a *app) controller() (*session.Controller, error) {
	baseDir, err := session.ResolveBaseDir(a.baseDir)
	if err != nil {
		return nil, err
	}
	connect := session.GetConnectSettings()
	opts := session.ControllerOptions{
		Shell:       session.ResolveShell(),
		HistorySize: session.GetHistorySize(),
		ClearScreen: connect.GetClearScreen(),
		Banner:      connect.GetBanner(),
		Stdin:       a.stdin,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
	}
	if db := a.openJournal(); db != nil {
		opts.Journal = db.Sessions(baseDir)
	}
	return session.NewController(session.NewStore(baseDir), opts), nil
}

func (a *app) openJournal() *statedb.StateDB {
	if a.journal != nil {
		return a.journal
	}
	appDir, err := session.GetAppDir()
	if err != nil {
		return nil
	}
	db, err := statedb.Open(filepath.Join(appDir, statedb.FileName))
	if err == nil {
		if err = db.Migrate(); err != nil {
			db.Close()
		}
	}
	if err != nil {
		cliLog.Warn("journal_unavailable", slog.String("error", err.Error()))
		return nil
	}
	a.journal = db
	return db
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			cliLog.Warn("journal_close_failed", slog.String("error", err.Error()))
		}
	}
	logging.Shutdown()
}

// printError writes the one-line diagnostic, plus label suggestions when the
// session does not exist.
func (a *app) printError(err error) {
	fmt.Fprintln(a.stderr, errorStyle.Render("pshaw: "+err.Error()))

	var opErr *session.OpError
	if !errors.Is(err, session.ErrNoSuchSession) || !errors.As(err, &opErr) {
		return
	}
	baseDir, resolveErr := session.ResolveBaseDir(a.baseDir)
	if resolveErr != nil {
		return
	}
	labels, _ := session.NewStore(baseDir).Labels()
	if similar := suggestLabels(opErr.Label, labels, maxSuggestions); len(similar) > 0 {
		fmt.Fprintln(a.stderr, hintStyle.Render("pshaw: did you mean: "+strings.Join(similar, ", ")+"?"))
	}
}
