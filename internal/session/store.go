package session

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Artifact file names inside a session directory.
const (
	LogFile     = "log"
	HistoryFile = "history"
	PwdFile     = "pwd"
	LockFile    = "lock"
)

// MaxLabelLen is the longest accepted session label.
const MaxLabelLen = 64

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][-A-Za-z0-9_]*$`)

// Paths is the resolved on-disk layout of one session.
type Paths struct {
	Label   string
	Dir     string
	Log     string
	History string
	Pwd     string
	Lock    string
}

// Store owns the session directories under a base directory.
// It knows nothing about processes.
type Store struct {
	baseDir string
}

// NewStore returns a store rooted at baseDir. The directory is created
// lazily by EnsureLayout.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the directory holding all sessions.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// ValidateLabel reports whether label is safe to use as a directory name.
func ValidateLabel(label string) error {
	switch {
	case label == "":
		return fmt.Errorf("%w: empty", ErrInvalidLabel)
	case len(label) > MaxLabelLen:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidLabel, MaxLabelLen)
	case strings.ContainsAny(label, `/\`) || label == "." || label == "..":
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidLabel, label)
	case !labelPattern.MatchString(label):
		return fmt.Errorf("%w: %q must match [A-Za-z0-9][-A-Za-z0-9_]*", ErrInvalidLabel, label)
	}
	return nil
}

// Resolve derives the session layout for label without touching the disk.
func (s *Store) Resolve(label string) (Paths, error) {
	if err := ValidateLabel(label); err != nil {
		return Paths{}, err
	}
	dir := filepath.Join(s.baseDir, label)
	return Paths{
		Label:   label,
		Dir:     dir,
		Log:     filepath.Join(dir, LogFile),
		History: filepath.Join(dir, HistoryFile),
		Pwd:     filepath.Join(dir, PwdFile),
		Lock:    filepath.Join(dir, LockFile),
	}, nil
}

// EnsureLayout creates the session directory and its empty artifacts.
// Artifacts that already exist are never opened for writing, so running it
// against a populated session leaves every byte in place. created reports
// whether the directory itself was made by this call.
func (s *Store) EnsureLayout(p Paths) (created bool, err error) {
	if err := os.MkdirAll(s.baseDir, 0o700); err != nil {
		return false, fmt.Errorf("create base directory: %w", err)
	}

	switch err := os.Mkdir(p.Dir, 0o700); {
	case err == nil:
		created = true
	case errors.Is(err, fs.ErrExist):
		info, statErr := os.Stat(p.Dir)
		if statErr != nil {
			return false, fmt.Errorf("stat session directory: %w", statErr)
		}
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", p.Dir)
		}
	default:
		return false, fmt.Errorf("create session directory: %w", err)
	}

	for _, path := range []string{p.Log, p.History, p.Pwd, p.Lock} {
		if err := touchExclusive(path); err != nil {
			return created, err
		}
	}
	return created, nil
}

// touchExclusive creates an empty file unless something already exists at path.
func touchExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Exists reports whether the session has been created.
func (s *Store) Exists(p Paths) bool {
	info, err := os.Stat(p.Dir)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(p.Log)
	return err == nil
}

// List yields the labels of existing sessions in lexical order. Every range
// over the returned sequence re-reads the base directory. A missing base
// directory yields nothing.
func (s *Store) List() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(s.baseDir)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("read %s: %w", s.baseDir, err))
			return
		}
		// os.ReadDir sorts by file name.
		for _, e := range entries {
			if !e.IsDir() || ValidateLabel(e.Name()) != nil {
				continue
			}
			if !yield(e.Name(), nil) {
				return
			}
		}
	}
}

// Labels collects List into a slice.
func (s *Store) Labels() ([]string, error) {
	var labels []string
	for label, err := range s.List() {
		if err != nil {
			return labels, err
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// ReadPwd returns the working directory marker, or "" when it is empty.
func ReadPwd(p Paths) (string, error) {
	data, err := os.ReadFile(p.Pwd)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// SeedPwd writes dir into the marker only if the marker is still empty.
func SeedPwd(p Paths, dir string) error {
	current, err := ReadPwd(p)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return os.WriteFile(p.Pwd, []byte(dir+"\n"), 0o600)
}

// Info is a snapshot of a session's artifacts.
type Info struct {
	Label       string
	Dir         string
	LogSize     int64
	LogModTime  time.Time
	HistorySize int64
	Pwd         string
}

// Stat reads artifact sizes without opening anything for writing.
func (s *Store) Stat(p Paths) (Info, error) {
	info := Info{Label: p.Label, Dir: p.Dir}

	logInfo, err := os.Stat(p.Log)
	if err != nil {
		return info, fmt.Errorf("stat log: %w", err)
	}
	info.LogSize = logInfo.Size()
	info.LogModTime = logInfo.ModTime()

	if histInfo, err := os.Stat(p.History); err == nil {
		info.HistorySize = histInfo.Size()
	}
	if pwd, err := ReadPwd(p); err == nil {
		info.Pwd = pwd
	}
	return info, nil
}
