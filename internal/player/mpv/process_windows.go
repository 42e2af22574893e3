//go:build windows

package mpv

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes detaches mpv from the console so it does not
// share the terminal's Ctrl+C handler.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
