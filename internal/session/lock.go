//go:build !windows

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/asheshgoplani/pshaw/internal/logging"
)

var lockLog = logging.ForComponent(logging.CompLock)

// LockHandle is a held session lock. The lock belongs to the open file
// description, which only this process holds: the descriptor is
// close-on-exec, so the shell and its jobs never inherit it. The lock is
// released on Close or when this process dies.
type LockHandle struct {
	label string
	file  *os.File
}

// TryAcquire takes the session's exclusive flock without waiting.
// Contention returns ErrSessionBusy; anything else is an I/O error.
func TryAcquire(p Paths) (*LockHandle, error) {
	f, err := os.OpenFile(p.Lock, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			lockLog.Info("lock_busy", slog.String("label", p.Label))
			return nil, ErrSessionBusy
		}
		return nil, fmt.Errorf("flock %s: %w", p.Lock, err)
	}

	lockLog.Debug("lock_acquired", slog.String("label", p.Label), slog.Int("pid", os.Getpid()))
	return &LockHandle{label: p.Label, file: f}, nil
}

// Close drops this process's reference to the lock.
func (h *LockHandle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	lockLog.Debug("lock_closed", slog.String("label", h.label))
	return err
}
