//go:build !windows

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/asheshgoplani/pshaw/internal/logging"
	"github.com/asheshgoplani/pshaw/internal/replicator"
	"github.com/asheshgoplani/pshaw/internal/shell"
	"github.com/asheshgoplani/pshaw/internal/statedb"
)

var sessLog = logging.ForComponent(logging.CompSession)

// ControllerOptions configures a Controller. Zero values fall back to the
// process's stdio and the user config defaults.
type ControllerOptions struct {
	Shell       string
	HistorySize int
	ClearScreen bool // reset the terminal before replaying the log
	Banner      bool // print a banner line when reconnecting
	HomeDir     string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Journal is optional.
	Journal Journal

	DrainTimeout time.Duration
}

// Controller implements create, connect and list on top of a Store. It keeps
// no state between calls; everything lives in the session directories.
type Controller struct {
	store *Store
	opts  ControllerOptions
}

// NewController returns a controller over store.
func NewController(store *Store, opts ControllerOptions) *Controller {
	if opts.Shell == "" {
		opts.Shell = ResolveShell()
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Controller{store: store, opts: opts}
}

// Store returns the controller's store.
func (c *Controller) Store() *Store {
	return c.store
}

// Create makes the session if needed and attaches to it, returning the
// shell's exit status. Creating a label that already exists behaves like
// Connect, so its scrollback is replayed rather than lost.
func (c *Controller) Create(ctx context.Context, label string) (int, error) {
	const op = "create"
	p, err := c.store.Resolve(label)
	if err != nil {
		return -1, opErr(op, label, err)
	}
	created, err := c.store.EnsureLayout(p)
	if err != nil {
		return -1, opErr(op, label, err)
	}
	if cwd, err := os.Getwd(); err == nil {
		if err := SeedPwd(p, cwd); err != nil {
			sessLog.Warn("seed_pwd_failed", slog.String("label", label), slog.String("error", err.Error()))
		}
	}

	if created {
		sessLog.Info("session_created", slog.String("label", label), slog.String("dir", p.Dir))
		c.record("create", label, func(j Journal) error { return j.RecordCreate(label, c.opts.Shell) })
	} else {
		sessLog.Warn("create_existing_session", slog.String("label", label))
	}
	return c.attach(ctx, op, p, !created)
}

// Connect attaches to an existing session, replaying its log and restoring
// its working directory. A missing session is ErrNoSuchSession and nothing
// is created on disk.
func (c *Controller) Connect(ctx context.Context, label string) (int, error) {
	const op = "connect"
	p, err := c.store.Resolve(label)
	if err != nil {
		return -1, opErr(op, label, err)
	}
	if !c.store.Exists(p) {
		return -1, opErr(op, label, ErrNoSuchSession)
	}
	return c.attach(ctx, op, p, true)
}

// attach holds the session lock for the lifetime of one shell. With resume
// set the log is replayed and the shell restores the last directory.
func (c *Controller) attach(ctx context.Context, op string, p Paths, resume bool) (int, error) {
	lock, err := TryAcquire(p)
	if err != nil {
		return -1, opErr(op, p.Label, err)
	}
	defer lock.Close()

	launch, err := shell.Prepare(shell.Config{
		Shell:       c.opts.Shell,
		Label:       p.Label,
		SessionDir:  p.Dir,
		HistoryPath: p.History,
		PwdPath:     p.Pwd,
		HistorySize: c.opts.HistorySize,
		Restore:     resume,
		Banner:      resume && c.opts.Banner,
		HomeDir:     c.opts.HomeDir,
	})
	if err != nil {
		return -1, opErr(op, p.Label, fmt.Errorf("%w: %v", ErrShellLaunch, err))
	}

	logFile, err := os.OpenFile(p.Log, os.O_WRONLY|os.O_APPEND, 0o600)
	var logW io.Writer = io.Discard
	if err != nil {
		c.reportLogFailure(p.Label, fmt.Errorf("%w: %v", replicator.ErrLogWrite, err))
	} else {
		defer logFile.Close()
		logW = logFile
	}
	sink := replicator.NewLogSink(logW, p.Label, func(err error) { c.reportLogFailure(p.Label, err) })

	if resume {
		if _, err := replicator.Replay(c.opts.Stdout, p.Log, c.opts.ClearScreen); err != nil {
			sessLog.Warn("replay_failed", slog.String("label", p.Label), slog.String("error", err.Error()))
		}
	}

	cmd := exec.Command(launch.Path, launch.Args...)
	cmd.Env = launch.Env
	cmd.Dir = c.startDir(p)
	// Only this process holds the lock; the shell must not outlive it.
	dieWithParent(cmd)

	code, err := replicator.Attach(ctx, cmd, replicator.Options{
		Label:        p.Label,
		Stdin:        c.opts.Stdin,
		Stdout:       c.opts.Stdout,
		Log:          sink,
		DrainTimeout: c.opts.DrainTimeout,
		Started: func(pid int) {
			c.record("attach", p.Label, func(j Journal) error { return j.RecordAttach(p.Label, c.opts.Shell, pid) })
		},
	})
	if err != nil {
		if errors.Is(err, replicator.ErrStart) {
			err = fmt.Errorf("%w: %v", ErrShellLaunch, err)
		}
		return -1, opErr(op, p.Label, err)
	}

	c.record("detach", p.Label, func(j Journal) error { return j.RecordDetach(p.Label, code) })
	sessLog.Info("session_detached",
		slog.String("label", p.Label),
		slog.Int("status", code),
		slog.Int64("bytes_logged", sink.Written()))
	return code, nil
}

// startDir is where the shell starts: the marker directory if it still
// exists, otherwise the caller's directory.
func (c *Controller) startDir(p Paths) string {
	if dir, err := ReadPwd(p); err == nil && dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

func (c *Controller) reportLogFailure(label string, err error) {
	// The terminal may be in raw mode, so the line carries its own CR.
	fmt.Fprintf(c.opts.Stderr, "\r\npshaw: warning: %v; the session continues without logging\r\n", err)
	c.record("log_error", label, func(j Journal) error { return j.RecordLogError(label) })
}

func (c *Controller) record(event, label string, fn func(Journal) error) {
	if c.opts.Journal == nil {
		return
	}
	if err := fn(c.opts.Journal); err != nil {
		sessLog.Warn("journal_write_failed",
			slog.String("event", event),
			slog.String("label", label),
			slog.String("error", err.Error()))
	}
}

// List yields existing labels in lexical order without touching any lock.
func (c *Controller) List(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for label, err := range c.store.List() {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield("", ctxErr)
				return
			}
			if !yield(label, err) {
				return
			}
		}
	}
}

// Description is what list --long shows for one session.
type Description struct {
	Info
	Journal  *statedb.SessionRow // nil without a journal entry
	Attached bool
}

// Describe stats a session and joins it with its journal row. Attached is
// derived from the journal's shell pid and is only a hint.
func (c *Controller) Describe(ctx context.Context, label string) (Description, error) {
	const op = "describe"
	if err := ctx.Err(); err != nil {
		return Description{}, err
	}
	p, err := c.store.Resolve(label)
	if err != nil {
		return Description{}, opErr(op, label, err)
	}
	if !c.store.Exists(p) {
		return Description{}, opErr(op, label, ErrNoSuchSession)
	}
	info, err := c.store.Stat(p)
	if err != nil {
		return Description{}, opErr(op, label, err)
	}
	d := Description{Info: info}
	if c.opts.Journal != nil {
		row, err := c.opts.Journal.Get(label)
		if err != nil {
			sessLog.Warn("journal_read_failed", slog.String("label", label), slog.String("error", err.Error()))
		}
		d.Journal = row
		d.Attached = row != nil && processAlive(row.AttachedPID)
	}
	return d, nil
}

// ReconcileJournal adds journal rows for sessions it has never seen and
// drops rows for sessions that no longer exist.
func (c *Controller) ReconcileJournal(ctx context.Context) error {
	if c.opts.Journal == nil {
		return nil
	}
	var onDisk []statedb.DiskSession
	for label, err := range c.List(ctx) {
		if err != nil {
			return err
		}
		d := statedb.DiskSession{Label: label}
		if p, err := c.store.Resolve(label); err == nil {
			if info, err := os.Stat(p.Dir); err == nil {
				d.CreatedAt = info.ModTime()
			}
		}
		onDisk = append(onDisk, d)
	}
	_, _, err := c.opts.Journal.Reconcile(onDisk)
	return err
}

// Tail copies a session's log to w, following appends when opts.Follow is
// set. It never takes the session lock.
func (c *Controller) Tail(ctx context.Context, label string, w io.Writer, opts replicator.FollowOptions) error {
	const op = "tail"
	p, err := c.store.Resolve(label)
	if err != nil {
		return opErr(op, label, err)
	}
	if !c.store.Exists(p) {
		return opErr(op, label, ErrNoSuchSession)
	}
	return opErr(op, label, replicator.Follow(ctx, w, p.Log, opts))
}
