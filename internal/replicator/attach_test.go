//go:build !windows

package replicator

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutPTY(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	_ = tty.Close()
	_ = ptmx.Close()
}

func TestAttachMirrorsOutputToLog(t *testing.T) {
	skipWithoutPTY(t)

	var screen, log lockedBuffer
	cmd := exec.Command("sh", "-c", "printf 'hello\\n'; printf 'second line\\n'; exit 3")
	code, err := Attach(context.Background(), cmd, Options{
		Label:  "alpha",
		Stdin:  strings.NewReader(""),
		Stdout: &screen,
		Log:    &log,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, screen.String(), "hello")
	assert.Contains(t, screen.String(), "second line")
	assert.Equal(t, screen.String(), log.String(), "log must hold exactly what the screen received")
	assert.Less(t, strings.Index(log.String(), "hello"), strings.Index(log.String(), "second line"))
}

func TestAttachForwardsInput(t *testing.T) {
	skipWithoutPTY(t)

	var screen lockedBuffer
	cmd := exec.Command("sh", "-c", `read line; echo "got:$line"`)
	code, err := Attach(context.Background(), cmd, Options{
		Stdin:  strings.NewReader("ping\n"),
		Stdout: &screen,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, screen.String(), "got:ping")
}

func TestAttachStdinEOFEndsShell(t *testing.T) {
	skipWithoutPTY(t)

	var screen lockedBuffer
	// cat exits when the terminal delivers end-of-file.
	cmd := exec.Command("cat")
	done := make(chan int, 1)
	go func() {
		code, _ := Attach(context.Background(), cmd, Options{
			Stdin:  strings.NewReader("line\n"),
			Stdout: &screen,
		})
		done <- code
	}()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("cat did not exit after stdin EOF")
	}
}

func TestAttachSignalExitStatus(t *testing.T) {
	skipWithoutPTY(t)

	cmd := exec.Command("sh", "-c", "kill -TERM $$")
	code, err := Attach(context.Background(), cmd, Options{
		Stdin:  strings.NewReader(""),
		Stdout: &lockedBuffer{},
	})
	require.NoError(t, err)
	assert.Equal(t, 128+15, code)
}

func TestAttachReportsPID(t *testing.T) {
	skipWithoutPTY(t)

	var got int
	cmd := exec.Command("sh", "-c", "exit 0")
	_, err := Attach(context.Background(), cmd, Options{
		Stdin:   strings.NewReader(""),
		Stdout:  &lockedBuffer{},
		Started: func(pid int) { got = pid },
	})
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, got)
}

func TestAttachSurvivesLogFailure(t *testing.T) {
	skipWithoutPTY(t)

	var screen lockedBuffer
	var reported int
	sink := NewLogSink(&failingWriter{}, "alpha", func(error) { reported++ })

	cmd := exec.Command("sh", "-c", "echo one; echo two; echo three")
	code, err := Attach(context.Background(), cmd, Options{
		Stdin:  strings.NewReader(""),
		Stdout: &screen,
		Log:    sink,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, screen.String(), "three")
	assert.Equal(t, 1, reported)
}

func TestAttachStartFailure(t *testing.T) {
	cmd := exec.Command("/nonexistent/pshaw-test-binary")
	_, err := Attach(context.Background(), cmd, Options{
		Stdin:  strings.NewReader(""),
		Stdout: &lockedBuffer{},
	})
	assert.ErrorIs(t, err, ErrStart)
}

func TestAttachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := exec.Command("sh", "-c", "exit 0")
	_, err := Attach(ctx, cmd, Options{Stdin: strings.NewReader(""), Stdout: &lockedBuffer{}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, cmd.Process, "nothing should be started")
}
