//go:build windows

package mcp

import "os/exec"

func setSysProcAttr(cmd *exec.Cmd) {}
