package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/asheshgoplani/pshaw/internal/logging"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 2

// FileName is the journal's file name inside the app directory.
const FileName = "state.db"

var dbLog = logging.ForComponent(logging.CompStateDB)

// StateDB is the attachment journal: when each session was created, attached
// and detached, and how its last shell exited. It is advisory. The session
// directories and their locks stay the source of truth, so a lost or stale
// journal never changes what create, connect or list do.
//
// One journal lives in the app directory and serves every base directory;
// rows are keyed by base directory and label. Use Sessions to get the view
// for one base.
//
// Safe for concurrent use; multiple processes share it via WAL mode and a
// busy timeout.
type StateDB struct {
	db *sql.DB
}

// SessionRow is one journal entry. Zero times mean "never".
type SessionRow struct {
	BaseDir        string
	Label          string
	Shell          string
	CreatedAt      time.Time
	LastAttachedAt time.Time
	LastDetachedAt time.Time
	AttachCount    int
	LastExitCode   int
	// AttachedPID is the shell pid of the current attachment, 0 after a
	// clean detach. A crashed attacher leaves it set; callers check liveness.
	AttachedPID int
	LogErrors   int
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them:
	// WAL lets list read while an attacher writes, busy_timeout waits up to
	// 5s for another process's write lock.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: ping: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Migrate creates tables if they don't exist and records the schema version.
// Version 1 keyed sessions by label alone; its rows are dropped and get
// backfilled by the next reconcile.
func (s *StateDB) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}
	current, err := s.GetMeta("schema_version")
	if err != nil {
		return fmt.Errorf("statedb: read schema version: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if current == "1" {
		if _, err := tx.Exec("DROP TABLE IF EXISTS sessions"); err != nil {
			return fmt.Errorf("statedb: drop v1 sessions: %w", err)
		}
		dbLog.Info("journal_schema_upgraded", slog.String("from", current), slog.Int("to", SchemaVersion))
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			base_dir         TEXT NOT NULL,
			label            TEXT NOT NULL,
			shell            TEXT NOT NULL DEFAULT '',
			created_at       INTEGER NOT NULL,
			last_attached_at INTEGER NOT NULL DEFAULT 0,
			last_detached_at INTEGER NOT NULL DEFAULT 0,
			attach_count     INTEGER NOT NULL DEFAULT 0,
			last_exit_code   INTEGER NOT NULL DEFAULT 0,
			attached_pid     INTEGER NOT NULL DEFAULT 0,
			log_errors       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (base_dir, label)
		)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statedb: commit migrate: %w", err)
	}
	dbLog.Debug("migrated", slog.Int("schema_version", SchemaVersion))
	return nil
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Sessions is the journal restricted to one base directory. Labels are only
// unique within a base, so every read and write is scoped to it.
type Sessions struct {
	db   *sql.DB
	base string
}

// Sessions returns the view for baseDir.
func (s *StateDB) Sessions(baseDir string) *Sessions {
	return &Sessions{db: s.db, base: filepath.Clean(baseDir)}
}

// --- Attachment events ---

// RecordCreate inserts a row for a new session. An existing row is kept.
func (s *Sessions) RecordCreate(label, shell string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO sessions (base_dir, label, shell, created_at) VALUES (?, ?, ?, ?)
	`, s.base, label, shell, time.Now().Unix())
	return err
}

// RecordAttach marks label as attached by the shell with the given pid. A
// session missing from the journal gets a row with created_at set to now.
func (s *Sessions) RecordAttach(label, shell string, pid int) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO sessions (base_dir, label, shell, created_at, last_attached_at, attach_count, attached_pid)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(base_dir, label) DO UPDATE SET
			shell = excluded.shell,
			last_attached_at = excluded.last_attached_at,
			attach_count = attach_count + 1,
			attached_pid = excluded.attached_pid
	`, s.base, label, shell, now, now, pid)
	return err
}

// RecordDetach marks label as detached with the shell's exit status.
func (s *Sessions) RecordDetach(label string, exitCode int) error {
	_, err := s.db.Exec(`
		UPDATE sessions
		SET last_detached_at = ?, last_exit_code = ?, attached_pid = 0
		WHERE base_dir = ? AND label = ?
	`, time.Now().Unix(), exitCode, s.base, label)
	return err
}

// RecordLogError counts a session log write failure.
func (s *Sessions) RecordLogError(label string) error {
	_, err := s.db.Exec("UPDATE sessions SET log_errors = log_errors + 1 WHERE base_dir = ? AND label = ?", s.base, label)
	return err
}

// --- Queries ---

const sessionColumns = `base_dir, label, shell, created_at, last_attached_at, last_detached_at,
	attach_count, last_exit_code, attached_pid, log_errors`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*SessionRow, error) {
	r := &SessionRow{}
	var created, attached, detached int64
	if err := sc.Scan(
		&r.BaseDir, &r.Label, &r.Shell, &created, &attached, &detached,
		&r.AttachCount, &r.LastExitCode, &r.AttachedPID, &r.LogErrors,
	); err != nil {
		return nil, err
	}
	r.CreatedAt = unixOrZero(created)
	r.LastAttachedAt = unixOrZero(attached)
	r.LastDetachedAt = unixOrZero(detached)
	return r, nil
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// Get returns the row for label, or nil if the journal has none.
func (s *Sessions) Get(label string) (*SessionRow, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE base_dir = ? AND label = ?", s.base, label)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}
