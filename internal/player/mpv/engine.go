// Package mpv drives an mpv process over JSON IPC as the underlying
// player engine.
package mpv

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/diniamo/gopv"

	"github.com/mnflix/mnflix-cli/internal/config"
	"github.com/mnflix/mnflix-cli/internal/player"
)

const (
	ipcConnectTimeout = 15 * time.Second
	pollInterval      = 500 * time.Millisecond
)

// Engine implements player.Engine on top of an mpv process
type Engine struct {
	mu sync.Mutex

	cfg    config.PlayerConfig
	logger *slog.Logger

	platform Platform
	cmd      *exec.Cmd
	client   *gopv.Client
	ipc      *IPCConfig

	status   player.Status
	onStatus func(player.Status)
	captions []player.Caption
	current  player.SourceDescriptor

	cancel       context.CancelFunc
	clientClosed bool
	stopping     bool
	sawEOF       bool

	positionSeconds int
	durationSeconds int
}

// NewEngine creates an mpv-backed engine. Fails when mpv is not
// installed.
func NewEngine(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	platform := DetectPlatform()
	if _, err := FindMPVExecutable(platform); err != nil {
		return nil, fmt.Errorf("mpv not found: %w", err)
	}
	return &Engine{
		cfg:      cfg.Player,
		logger:   logger,
		platform: platform,
		status:   player.StatusIdle,
	}, nil
}

// Status returns the current playback status
func (e *Engine) Status() player.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// OnStatus registers the status-transition callback
func (e *Engine) OnStatus(cb func(player.Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStatus = cb
}

// SetCaptionList replaces the engine's known caption tracks
func (e *Engine) SetCaptionList(list []player.Caption) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captions = list
}

// SetSource loads the given media source, reusing the running mpv
// process when one exists.
func (e *Engine) SetSource(ctx context.Context, src player.SourceDescriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = src
	e.sawEOF = false
	e.positionSeconds = 0
	e.durationSeconds = 0

	if e.client != nil {
		return e.loadIntoRunning(src)
	}
	return e.launch(ctx, src)
}

// loadIntoRunning replaces the playing file over IPC
func (e *Engine) loadIntoRunning(src player.SourceDescriptor) error {
	args := []any{"loadfile", src.URL, "replace"}
	if src.StartSeconds > 0 {
		args = append(args, fmt.Sprintf("start=+%d", src.StartSeconds))
	}
	if _, err := e.client.Request(args...); err != nil {
		return fmt.Errorf("mpv loadfile: %w", err)
	}
	if src.Title != "" {
		_, _ = e.client.Request("set_property", "force-media-title", src.Title)
	}
	e.setStatusLocked(player.StatusLoading)
	return nil
}

// launch starts a fresh mpv process and connects to its IPC endpoint
func (e *Engine) launch(ctx context.Context, src player.SourceDescriptor) error {
	mpvExec, err := FindMPVExecutable(e.platform)
	if err != nil {
		return err
	}

	ipc, err := NewIPCConfig(e.platform)
	if err != nil {
		return fmt.Errorf("failed to generate IPC config: %w", err)
	}
	e.ipc = ipc

	e.cmd = exec.Command(mpvExec, e.buildArgs(src)...)
	// Detach from the terminal so mpv does not steal stdin or corrupt
	// console output.
	e.cmd.Stdin = nil
	e.cmd.Stdout = nil
	e.cmd.Stderr = nil
	setupProcessAttributes(e.cmd)

	if err := e.cmd.Start(); err != nil {
		e.ipc.Cleanup()
		return fmt.Errorf("failed to start mpv: %w", err)
	}

	e.clientClosed = false
	e.stopping = false
	e.setStatusLocked(player.StatusLoading)

	var initCtx context.Context
	initCtx, e.cancel = context.WithCancel(context.Background())
	go e.connect(initCtx, ipc)

	return nil
}

func (e *Engine) buildArgs(src player.SourceDescriptor) []string {
	args := []string{
		e.ipc.IPCArgument(),
		"--quiet",
		"--keep-open=no",
	}
	if !e.cfg.LoadUserConfig {
		args = append(args, "--no-config")
	}
	if e.cfg.Fullscreen {
		args = append(args, "--fullscreen")
	}
	if e.cfg.Volume > 0 {
		args = append(args, fmt.Sprintf("--volume=%d", e.cfg.Volume))
	}
	if src.Title != "" {
		args = append(args, fmt.Sprintf("--force-media-title=%s", src.Title))
	}
	if src.StartSeconds > 0 {
		args = append(args, fmt.Sprintf("--start=+%d", src.StartSeconds))
	}
	for _, ch := range src.Chapters {
		if ch.Name == "intro" && ch.End > 0 {
			// Skippable intro marker; mpv exposes it via chapter seek
			args = append(args, fmt.Sprintf("--script-opts=mnflix-intro-end=%f", ch.End))
			break
		}
	}
	args = append(args, src.URL)
	return args
}

// connect waits for the IPC endpoint, attaches gopv, and starts the
// monitoring loops. Failures surface as PlaybackError status.
func (e *Engine) connect(ctx context.Context, ipc *IPCConfig) {
	deadline := time.After(ipcConnectTimeout)
	for !isPipeReady(ipc.Address) {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			e.logger.Error("timeout waiting for mpv IPC", "address", ipc.Address)
			e.failLocked()
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	client, err := gopv.Connect(ipc.ConnectionString(), func(err error) {
		e.logger.Debug("mpv IPC error", "error", err)
	})
	if err != nil {
		e.logger.Error("failed to connect to mpv IPC", "address", ipc.Address, "error", err)
		e.failLocked()
		return
	}

	e.mu.Lock()
	e.client = client
	e.setStatusLocked(player.StatusPlaying)
	e.mu.Unlock()

	go e.monitorProperties(ctx)
	go e.monitorProcess()
}

// monitorProperties polls playback properties to observe EOF
func (e *Engine) monitorProperties(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		client := e.client
		e.mu.Unlock()
		if client == nil {
			return
		}

		if result, err := client.Request("get_property", "eof-reached"); err == nil {
			if reached, ok := result.(bool); ok && reached {
				e.mu.Lock()
				e.sawEOF = true
				e.mu.Unlock()
			}
		}

		pos, posOK := requestFloat(client, "time-pos")
		dur, durOK := requestFloat(client, "duration")
		if posOK && durOK {
			e.observePosition(pos, dur)
		}
	}
}

// observePosition records a polled playback sample. The first sample
// after a loadfile means mpv is decoding again, so a Loading status
// flips back to Playing here when the process was reused.
func (e *Engine) observePosition(pos, dur float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positionSeconds = int(pos)
	e.durationSeconds = int(dur)
	if e.status == player.StatusLoading {
		e.setStatusLocked(player.StatusPlaying)
	}
}

func requestFloat(client *gopv.Client, property string) (float64, bool) {
	result, err := client.Request("get_property", property)
	if err != nil {
		return 0, false
	}
	f, ok := result.(float64)
	return f, ok
}

// Position returns the last observed playback position and duration in
// seconds. ok is false before the first observation.
func (e *Engine) Position() (currentSeconds, totalSeconds int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.durationSeconds <= 0 {
		return 0, 0, false
	}
	return e.positionSeconds, e.durationSeconds, true
}

// monitorProcess waits for mpv to exit and classifies the exit: a
// clean EOF is Ended, everything else while not stopping is a
// playback error.
func (e *Engine) monitorProcess() {
	e.mu.Lock()
	cmd := e.cmd
	e.mu.Unlock()
	if cmd == nil {
		return
	}

	err := cmd.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.client = nil
	e.cmd = nil
	if e.ipc != nil {
		e.ipc.Cleanup()
	}

	if e.stopping {
		e.setStatusLocked(player.StatusIdle)
		return
	}
	if e.sawEOF && err == nil {
		e.setStatusLocked(player.StatusEnded)
		return
	}
	e.logger.Warn("mpv exited during playback", "error", err, "url", e.current.URL)
	e.setStatusLocked(player.StatusPlaybackError)
}

// SelectCaption displays the identified caption track; "" clears.
// Fails when the engine is not connected yet, which callers retry
// after the source settles.
func (e *Engine) SelectCaption(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return fmt.Errorf("player engine not ready")
	}

	if id == "" {
		if _, err := e.client.Request("set_property", "sid", "no"); err != nil {
			return fmt.Errorf("mpv clear subtitle: %w", err)
		}
		return nil
	}

	for _, c := range e.captions {
		if c.ID == id {
			if _, err := e.client.Request("sub-add", c.URL, "select", c.Label, c.Language); err != nil {
				return fmt.Errorf("mpv sub-add: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("unknown caption track %q", id)
}

// Stop tears down playback and the mpv process
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == player.StatusIdle && e.cmd == nil {
		return nil
	}
	e.stopping = true

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	if e.client != nil && !e.clientClosed {
		e.clientClosed = true
		client := e.client
		e.client = nil
		go func() {
			// Ask mpv to quit; the process kill below covers the case
			// where the request never lands. gopv closes itself on EOF
			// from the dead process.
			done := make(chan struct{})
			go func() {
				_, _ = client.Request("quit")
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(500 * time.Millisecond):
			}
		}()
	}

	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}

	return nil
}

// setStatusLocked updates status and fires the callback outside the
// lock. Callers must hold e.mu.
func (e *Engine) setStatusLocked(st player.Status) {
	if e.status == st {
		return
	}
	e.status = st
	if cb := e.onStatus; cb != nil {
		go cb(st)
	}
}

// failLocked flips to PlaybackError from a goroutine that does not
// hold the lock.
func (e *Engine) failLocked() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	if e.ipc != nil {
		e.ipc.Cleanup()
	}
	e.setStatusLocked(player.StatusPlaybackError)
}
