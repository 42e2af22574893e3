//go:build !windows

package mpv

import (
	"net"
	"time"
)

// isPipeReady checks whether the Unix socket accepts connections yet
func isPipeReady(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
