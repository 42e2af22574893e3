// Package player defines the underlying player engine interface the
// playback session drives. The engine owns media decoding and
// rendering; the session owns what plays and which captions show.
package player

import "context"

// Status is the engine's playback status. PlaybackError is the
// distinguished value the fallback controller consumes.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
	StatusPlaying       Status = "playing"
	StatusEnded         Status = "ended"
	StatusPlaybackError Status = "playback_error"
)

// Format is the delivery format of a source descriptor
type Format string

const (
	FormatHLS Format = "hls"
	FormatMP4 Format = "mp4"
)

// Chapter is a named time range (intro/outro hints)
type Chapter struct {
	Name  string
	Start float64 // seconds
	End   float64
}

// SourceDescriptor tells the engine what to load
type SourceDescriptor struct {
	URL          string
	Format       Format
	Title        string
	StartSeconds int
	Chapters     []Chapter
}

// Caption is a subtitle track as the engine sees it
type Caption struct {
	ID       string
	Language string
	URL      string
	Label    string
}

// Engine is the underlying player. Implementations report status
// transitions through the OnStatus callback; a PlaybackError there is
// what drives provider fallback.
type Engine interface {
	// SetSource loads and starts the given media source
	SetSource(ctx context.Context, src SourceDescriptor) error

	// SetCaptionList replaces the engine's known caption tracks
	SetCaptionList(list []Caption)

	// SelectCaption displays the track with the given id; "" clears
	// the displayed caption. Selecting a track the engine has not
	// registered yet is an error, which callers may retry shortly
	// after the source starts loading.
	SelectCaption(id string) error

	// Status returns the current playback status
	Status() Status

	// OnStatus registers the status-transition callback
	OnStatus(func(Status))

	// Stop tears down playback
	Stop(ctx context.Context) error
}
