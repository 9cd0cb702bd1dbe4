//go:build !windows

package replicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/asheshgoplani/pshaw/internal/logging"
)

// ErrStart wraps failures to start the child on a pty.
var ErrStart = errors.New("failed to start process on pty")

// DefaultDrainTimeout bounds how long Attach keeps reading the pty after the
// child exits. Background jobs that still hold the terminal would otherwise
// keep the pump alive forever.
const DefaultDrainTimeout = 500 * time.Millisecond

// eot is sent to the pty when a non-terminal stdin reaches EOF, so a
// scripted session ends the same way a user typing Ctrl+D would.
const eot = 0x04

// Options configures Attach.
type Options struct {
	Label  string
	Stdin  io.Reader // default os.Stdin
	Stdout io.Writer // default os.Stdout
	// Log receives every byte written to Stdout, in the same order.
	Log          io.Writer
	DrainTimeout time.Duration
	// Started, if set, is called once the child is running.
	Started func(pid int)
}

// forwardedSignals reach the child as if it had been signalled directly.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// Attach runs cmd on a new pty wired to the caller's terminal and blocks
// until it exits. Output is copied by a single goroutine, to Stdout first
// and then to Log, so both see identical bytes in identical order. The
// returned code is the child's exit status, or 128+N if signal N killed it.
func Attach(ctx context.Context, cmd *exec.Cmd, opts Options) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Log == nil {
		opts.Log = io.Discard
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	stdinFile, isTTY := opts.Stdin.(*os.File)
	isTTY = isTTY && term.IsTerminal(int(stdinFile.Fd()))

	var ptmx *os.File
	var err error
	if isTTY {
		if ws, sizeErr := pty.GetsizeFull(stdinFile); sizeErr == nil {
			ptmx, err = pty.StartWithSize(cmd, ws)
		} else {
			ptmx, err = pty.Start(cmd)
		}
	} else {
		ptmx, err = pty.Start(cmd)
	}
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrStart, err)
	}
	defer ptmx.Close()

	pid := cmd.Process.Pid
	replLog.Info("child_started", slog.String("label", opts.Label), slog.Int("pid", pid), slog.Bool("tty", isTTY))
	if opts.Started != nil {
		opts.Started(pid)
	}

	if isTTY {
		oldState, err := term.MakeRaw(int(stdinFile.Fd()))
		if err != nil {
			replLog.Warn("raw_mode_failed", slog.String("error", err.Error()))
		} else {
			defer func() { _ = term.Restore(int(stdinFile.Fd()), oldState) }()
		}
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		wg.Wait()
	}()

	if isTTY {
		sigwinch := make(chan os.Signal, 1)
		signal.Notify(sigwinch, syscall.SIGWINCH)
		defer signal.Stop(sigwinch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case <-sigwinch:
					if ws, err := pty.GetsizeFull(stdinFile); err == nil {
						_ = pty.Setsize(ptmx, ws)
					}
				}
			}
		}()
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, forwardedSignals...)
	defer signal.Stop(sigs)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				replLog.Info("signal_forwarded", slog.String("label", opts.Label), slog.String("signal", sig.String()))
				_ = cmd.Process.Signal(sig)
			}
		}
	}()

	// Output pump: the only reader of the pty.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pumpOutput(ptmx, opts)
	}()

	// Input pump. Not waited for: a read on the real terminal cannot be
	// interrupted and the process exits shortly after Attach returns.
	go func() {
		_, err := io.Copy(ptmx, opts.Stdin)
		if err == nil && !isTTY {
			_, _ = ptmx.Write([]byte{eot})
		}
	}()

	waitErr := cmd.Wait()

	select {
	case <-pumpDone:
	case <-time.After(opts.DrainTimeout):
		replLog.Warn("drain_timeout", slog.String("label", opts.Label), slog.Duration("timeout", opts.DrainTimeout))
		_ = ptmx.Close()
		select {
		case <-pumpDone:
		case <-time.After(opts.DrainTimeout):
		}
	}

	code, err := exitStatus(waitErr)
	replLog.Info("child_exited", slog.String("label", opts.Label), slog.Int("pid", pid), slog.Int("status", code))
	return code, err
}

func pumpOutput(ptmx *os.File, opts Options) {
	buf := make([]byte, 32*1024)
	stdoutOK := true
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if stdoutOK {
				if _, werr := opts.Stdout.Write(chunk); werr != nil {
					// The terminal went away; keep logging.
					stdoutOK = false
					replLog.Warn("stdout_write_failed", slog.String("label", opts.Label), slog.String("error", werr.Error()))
				}
			}
			_, _ = opts.Log.Write(chunk)
			logging.Count(logging.CompReplicator, "pty_chunk", int64(n), slog.String("label", opts.Label))
		}
		if err != nil {
			// EIO is how Linux reports that the slave side has closed.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				replLog.Warn("pty_read_failed", slog.String("label", opts.Label), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait for shell: %w", err)
}
