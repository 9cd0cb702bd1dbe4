package statedb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DiskSession describes a session directory found on disk.
type DiskSession struct {
	Label     string
	CreatedAt time.Time
}

// Reconcile brings the view's rows in line with the sessions on disk in its
// base directory: labels the journal has never seen get a row dated from their
// directory, and rows whose directory is gone are removed. Rows of other base
// directories are never touched. It returns how many rows were added and
// removed.
func (s *Sessions) Reconcile(onDisk []DiskSession) (added, removed int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("statedb: begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Delete rows not on disk so a removed session does not reappear.
	var res sql.Result
	if len(onDisk) == 0 {
		res, err = tx.Exec("DELETE FROM sessions WHERE base_dir = ?", s.base)
	} else {
		placeholders := make([]string, len(onDisk))
		args := make([]any, 0, len(onDisk)+1)
		args = append(args, s.base)
		for i, d := range onDisk {
			placeholders[i] = "?"
			args = append(args, d.Label)
		}
		query := "DELETE FROM sessions WHERE base_dir = ? AND label NOT IN (" + strings.Join(placeholders, ",") + ")"
		res, err = tx.Exec(query, args...)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("statedb: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	removed = int(n)

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO sessions (base_dir, label, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return 0, 0, fmt.Errorf("statedb: prepare backfill: %w", err)
	}
	defer stmt.Close()

	for _, d := range onDisk {
		created := d.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		res, err := stmt.Exec(s.base, d.Label, created.Unix())
		if err != nil {
			return 0, 0, fmt.Errorf("statedb: backfill %s: %w", d.Label, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("statedb: commit reconcile: %w", err)
	}
	if added > 0 || removed > 0 {
		dbLog.Info("journal_reconciled", slog.String("base_dir", s.base), slog.Int("added", added), slog.Int("removed", removed))
	}
	return added, removed, nil
}
