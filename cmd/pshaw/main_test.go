package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/pshaw/internal/session"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// makeSessions lays out sessions on disk without starting a shell.
func makeSessions(t *testing.T, baseDir string, labels ...string) *session.Store {
	t.Helper()
	store := session.NewStore(baseDir)
	for _, label := range labels {
		p, err := store.Resolve(label)
		require.NoError(t, err)
		_, err = store.EnsureLayout(p)
		require.NoError(t, err)
	}
	return store
}

func TestVersion(t *testing.T) {
	r := runCLI(t, "", "version")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "pshaw v"+Version+"\n", r.stdout)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"connect without label", []string{"connect"}},
		{"create with two labels", []string{"create", "a", "b"}},
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"list", "--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runCLI(t, "", tt.args...)
			assert.Equal(t, session.ExitUsage, r.code)
			assert.True(t, strings.HasPrefix(r.stderr, "pshaw: "), r.stderr)
		})
	}
}

func TestListEmpty(t *testing.T) {
	base := filepath.Join(t.TempDir(), "none")
	r := runCLI(t, "", "--base-dir", base, "list")
	assert.Equal(t, 0, r.code)
	assert.Empty(t, r.stdout)
	assert.Empty(t, r.stderr)

	r = runCLI(t, "", "--base-dir", base, "list", "--long")
	assert.Equal(t, 0, r.code)
	assert.Empty(t, r.stdout)
}

func TestListUnreadableBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0o600))

	for _, args := range [][]string{{"list"}, {"list", "--long"}} {
		r := runCLI(t, "", append([]string{"--base-dir", base}, args...)...)
		assert.Equal(t, 0, r.code, args)
		assert.Empty(t, r.stdout, args)
		assert.Contains(t, r.stderr, "pshaw: warning: ", args)
	}
}

func TestListLabels(t *testing.T) {
	base := t.TempDir()
	makeSessions(t, base, "zulu", "alpha", "mike")

	r := runCLI(t, "", "--base-dir", base, "list")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "alpha\nmike\nzulu\n", r.stdout)
}

func TestListJSON(t *testing.T) {
	base := t.TempDir()
	makeSessions(t, base, "beta", "alpha")

	r := runCLI(t, "", "--base-dir", base, "list", "--json")
	require.Equal(t, 0, r.code, r.stderr)

	var records []sessionJSON
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Label)
	assert.Equal(t, filepath.Join(base, "alpha"), records[0].Dir)
	assert.Nil(t, records[0].LogBytes, "short form carries no stats")
}

func TestListLong(t *testing.T) {
	base := t.TempDir()
	store := makeSessions(t, base, "alpha", "beta")
	p, _ := store.Resolve("alpha")
	require.NoError(t, os.WriteFile(p.Log, bytes.Repeat([]byte("x"), 2048), 0o600))
	require.NoError(t, os.WriteFile(p.Pwd, []byte("/srv/project\n"), 0o600))

	r := runCLI(t, "", "--base-dir", base, "list", "--long")
	require.Equal(t, 0, r.code, r.stderr)

	lines := strings.Split(strings.TrimRight(r.stdout, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "LABEL")
	assert.True(t, strings.HasPrefix(lines[2], "alpha"))
	assert.Contains(t, lines[2], "detached")
	assert.Contains(t, lines[2], "2.0 KiB")
	assert.Contains(t, lines[2], "/srv/project")
	assert.True(t, strings.HasPrefix(lines[3], "beta"))

	r = runCLI(t, "", "--base-dir", base, "list", "--long", "--json")
	require.Equal(t, 0, r.code, r.stderr)
	var records []sessionJSON
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &records))
	require.Len(t, records, 2)
	require.NotNil(t, records[0].LogBytes)
	assert.Equal(t, int64(2048), *records[0].LogBytes)
	require.NotNil(t, records[0].Attached)
	assert.False(t, *records[0].Attached)
	assert.Equal(t, "/srv/project", records[0].Pwd)
}

func TestConnectMissingSuggests(t *testing.T) {
	base := t.TempDir()
	makeSessions(t, base, "alphabet", "zulu")

	r := runCLI(t, "", "--base-dir", base, "connect", "alpha")
	assert.Equal(t, session.ExitNoSession, r.code)
	lines := strings.Split(strings.TrimRight(r.stderr, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `pshaw: connect "alpha": no such session`, lines[0])
	assert.Equal(t, "pshaw: did you mean: alphabet?", lines[1])

	_, err := os.Stat(filepath.Join(base, "alpha"))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidLabelExitCode(t *testing.T) {
	base := t.TempDir()
	r := runCLI(t, "", "--base-dir", base, "create", "no/slashes")
	assert.Equal(t, session.ExitInvalid, r.code)
	assert.True(t, strings.HasPrefix(r.stderr, `pshaw: create "no/slashes": invalid label`), r.stderr)
}

func TestBusyExitCode(t *testing.T) {
	base := t.TempDir()
	store := makeSessions(t, base, "alpha")
	p, _ := store.Resolve("alpha")
	held, err := session.TryAcquire(p)
	require.NoError(t, err)
	defer held.Close()

	r := runCLI(t, "", "--base-dir", base, "connect", "alpha")
	assert.Equal(t, session.ExitSessionBusy, r.code)
	assert.Contains(t, r.stderr, "session is attached elsewhere")
	assert.Empty(t, r.stdout)
}

func TestTail(t *testing.T) {
	base := t.TempDir()
	store := makeSessions(t, base, "alpha")
	p, _ := store.Resolve("alpha")
	require.NoError(t, os.WriteFile(p.Log, []byte("first\nsecond\n"), 0o600))

	r := runCLI(t, "", "--base-dir", base, "tail", "alpha")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "first\nsecond\n", r.stdout)

	r = runCLI(t, "", "--base-dir", base, "tail", "-n", "7", "alpha")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "second\n", r.stdout)

	r = runCLI(t, "", "--base-dir", base, "tail", "ghost")
	assert.Equal(t, session.ExitNoSession, r.code)
}

func TestSuggestLabels(t *testing.T) {
	labels := []string{"alpha", "alphabet", "beta", "gamma"}
	assert.Equal(t, []string{"alpha", "alphabet"}, suggestLabels("alp", labels, 3))
	assert.Equal(t, []string{"alpha"}, suggestLabels("alpha2", labels, 3))
	assert.Empty(t, suggestLabels("zzz", labels, 3))
	assert.Len(t, suggestLabels("a", labels, 2), 2)
}

func TestTruncateHelpers(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, ".../to/dir", truncateLeft("/very/long/path/to/dir", 10))
	assert.Equal(t, "ab   ", pad("ab", 5))
}

func TestCreateExitStatus(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	_ = tty.Close()
	_ = ptmx.Close()

	t.Setenv("SHELL", bash)
	session.ClearUserConfigCache()
	base := t.TempDir()

	r := runCLI(t, "echo from-$((6*7))\nexit 3\n", "--base-dir", base, "create", "alpha")
	assert.Equal(t, 3, r.code, r.stderr)
	assert.Contains(t, r.stdout, "from-42")

	r = runCLI(t, "", "--base-dir", base, "tail", "alpha")
	assert.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "from-42")

	r = runCLI(t, "", "--base-dir", base, "list", "--long", "--json")
	require.Equal(t, 0, r.code, r.stderr)
	var records []sessionJSON
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &records))
	require.Len(t, records, 1)
	require.NotNil(t, records[0].AttachCount)
	assert.Equal(t, 1, *records[0].AttachCount)
	require.NotNil(t, records[0].LastExitCode)
	assert.Equal(t, 3, *records[0].LastExitCode)
}
