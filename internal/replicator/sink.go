package replicator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asheshgoplani/pshaw/internal/logging"
)

// ErrLogWrite marks a failure to append to the session log. It is never
// fatal: the session keeps running without logging.
var ErrLogWrite = errors.New("session log write failed")

// LogSink is a best-effort writer for the session log. After the first
// failed write it stops writing, reports the error once and keeps accepting
// bytes so the output pump never stalls.
type LogSink struct {
	w         io.Writer
	label     string
	onFailure func(error)
	report    sync.Once

	mu      sync.Mutex
	err     error
	written int64
}

// NewLogSink wraps w. onFailure, if set, is called at most once with an
// error wrapping ErrLogWrite.
func NewLogSink(w io.Writer, label string, onFailure func(error)) *LogSink {
	return &LogSink{
		w:         w,
		label:     label,
		onFailure: onFailure,
	}
}

// Write always reports len(p), nil.
func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return len(p), nil
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = fmt.Errorf("%w: %v", ErrLogWrite, err)
	}
	failure := s.err
	s.mu.Unlock()

	if failure != nil {
		s.report.Do(func() {
			replLog.Warn("log_write_failed",
				slog.String("label", s.label),
				slog.Int64("bytes_logged", s.Written()),
				slog.String("error", failure.Error()))
			if s.onFailure != nil {
				s.onFailure(failure)
			}
		})
		return len(p), nil
	}
	logging.Count(logging.CompReplicator, "log_append", int64(n), slog.String("label", s.label))
	return len(p), nil
}

// Err returns the first write failure, or nil.
func (s *LogSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Written returns the number of bytes that reached the log.
func (s *LogSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
