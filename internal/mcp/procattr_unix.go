//go:build unix

package mcp

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the child in its own process group so terminal signals
// aimed at the gateway do not reach it first.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
