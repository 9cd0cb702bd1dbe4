// Package replicator copies a shell's terminal output to the screen and to
// the session log, replays the log on connect and follows it read-only.
package replicator

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/asheshgoplani/pshaw/internal/logging"
)

var replLog = logging.ForComponent(logging.CompReplicator)

// ResetSequence is the terminal full reset (RIS) written before a replay.
const ResetSequence = "\033c"

// Replay writes the whole session log to w, preceded by a terminal reset
// when clear is set. The replayed bytes are not logged again. It returns the
// number of log bytes written.
func Replay(w io.Writer, logPath string, clear bool) (int64, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return 0, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	if clear {
		if _, err := io.WriteString(w, ResetSequence); err != nil {
			return 0, fmt.Errorf("reset terminal: %w", err)
		}
	}

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("replay log: %w", err)
	}
	replLog.Debug("log_replayed", slog.String("path", logPath), slog.Int64("bytes", n))
	return n, nil
}
