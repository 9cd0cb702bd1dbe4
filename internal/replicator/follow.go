package replicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// followRate caps catch-ups while following. A busy shell appends in many
// small writes and each one fires a filesystem event.
var followRate = rate.Every(50 * time.Millisecond)

// FollowOptions configures Follow.
type FollowOptions struct {
	// Tail limits the initial dump to the last Tail bytes; 0 dumps everything.
	Tail int64
	// Follow keeps streaming appended bytes until ctx is cancelled.
	Follow bool
	// PollInterval is the fallback when no filesystem event arrives (default 1s).
	PollInterval time.Duration
}

// Follow copies a session log to w without taking the session lock. With
// opts.Follow it keeps streaming as the attached shell appends, like tail -f.
func Follow(ctx context.Context, w io.Writer, logPath string, opts FollowOptions) error {
	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	if opts.Tail > 0 {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat log: %w", err)
		}
		if info.Size() > opts.Tail {
			if _, err := f.Seek(info.Size()-opts.Tail, io.SeekStart); err != nil {
				return fmt.Errorf("seek log: %w", err)
			}
		}
	}

	if _, err := copyFrom(w, f); err != nil || !opts.Follow {
		return err
	}
	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seek log: %w", err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		replLog.Warn("follow_watcher_unavailable", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
		if err := watcher.Add(logPath); err != nil {
			replLog.Warn("follow_watch_failed", slog.String("path", logPath), slog.String("error", err.Error()))
		}
	}

	var events chan fsnotify.Event
	var watchErrs chan error
	if watcher != nil {
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	limiter := rate.NewLimiter(followRate, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&fsnotify.Write == 0 {
				continue
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			replLog.Debug("follow_watch_error", slog.String("error", err.Error()))
			continue
		case <-ticker.C:
		}

		if limiter.Wait(ctx) != nil {
			return nil
		}
		offset, err = catchUp(w, f, offset)
		if err != nil {
			return err
		}
	}
}

// catchUp writes everything appended since offset.
func catchUp(w io.Writer, f *os.File, offset int64) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() < offset {
		// The log only grows, but someone may have replaced it by hand.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return offset, fmt.Errorf("seek log: %w", err)
		}
		offset = 0
	}
	n, err := copyFrom(w, f)
	return offset + n, err
}

func copyFrom(w io.Writer, f *os.File) (int64, error) {
	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("copy log: %w", err)
	}
	return n, nil
}
