package mpv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform represents the operating system platform
type Platform int

const (
	PlatformLinux Platform = iota
	PlatformWindows
	PlatformWSL
	PlatformMac
)

// IPCConfig holds the mpv IPC endpoint for this playback
type IPCConfig struct {
	Address  string
	IsSocket bool // Unix socket vs Windows named pipe
}

// DetectPlatform detects the current platform
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "darwin":
		return PlatformMac
	case "linux":
		if isWSL() {
			return PlatformWSL
		}
		return PlatformLinux
	default:
		return PlatformLinux
	}
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// MPVExecutable returns the mpv executable name for the platform
func MPVExecutable(platform Platform) string {
	if platform == PlatformWindows {
		return "mpv.exe"
	}
	return "mpv"
}

// FindMPVExecutable locates mpv in PATH
func FindMPVExecutable(platform Platform) (string, error) {
	executable := MPVExecutable(platform)
	path, err := exec.LookPath(executable)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH, please install mpv", executable)
	}
	return path, nil
}

// NewIPCConfig generates a fresh IPC endpoint for the platform.
// Windows named pipes are not reachable from gopv under WSL, so WSL
// uses a Unix socket like native Linux.
func NewIPCConfig(platform Platform) (*IPCConfig, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}

	if platform == PlatformWindows {
		return &IPCConfig{
			Address:  fmt.Sprintf(`\\.\pipe\mnflix-mpv-%s`, suffix),
			IsSocket: false,
		}, nil
	}
	return &IPCConfig{
		Address:  filepath.Join(os.TempDir(), fmt.Sprintf("mnflix-mpv-%s.sock", suffix)),
		IsSocket: true,
	}, nil
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IPCArgument returns the mpv command-line argument for IPC
func (c *IPCConfig) IPCArgument() string {
	return fmt.Sprintf("--input-ipc-server=%s", c.Address)
}

// ConnectionString returns the address gopv connects to
func (c *IPCConfig) ConnectionString() string {
	return c.Address
}

// Cleanup removes the Unix socket file, if any
func (c *IPCConfig) Cleanup() {
	if c.IsSocket {
		_ = os.Remove(c.Address)
	}
}
