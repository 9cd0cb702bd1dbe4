//go:build !linux && !windows

package session

import "os/exec"

// dieWithParent is a no-op without a parent-death signal. The shell still
// gets SIGHUP when the pty master closes with pshaw.
func dieWithParent(cmd *exec.Cmd) {}
