package playback

import "fmt"

// ErrorKind classifies session-level playback failures
type ErrorKind string

const (
	// ErrorNoSources: the catalog fetch succeeded but returned zero
	// streams. Nothing to play, no automatic retry.
	ErrorNoSources ErrorKind = "no_sources"
	// ErrorFetchFailed: network/backend error during catalog or
	// metadata fetch. Manual retry re-runs the full load sequence.
	ErrorFetchFailed ErrorKind = "fetch_failed"
	// ErrorUnsupportedFormat: the selected candidate could not be
	// mapped to a playable descriptor.
	ErrorUnsupportedFormat ErrorKind = "unsupported_format"
	// ErrorExhausted: the fallback provider's candidates all failed.
	// Terminal until manual retry or provider switch.
	ErrorExhausted ErrorKind = "all_candidates_exhausted"
	// ErrorPlayback: the engine could not play the committed source
	// and no automatic fallback applies.
	ErrorPlayback ErrorKind = "playback_error"
)

// Error is a session-level playback failure, carrying the selection
// context so the message can name the provider and quality in play.
type Error struct {
	Kind     ErrorKind
	Provider string
	Quality  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the user-facing description
func (e *Error) Message() string {
	var msg string
	switch e.Kind {
	case ErrorNoSources:
		msg = "no streaming sources available"
	case ErrorFetchFailed:
		msg = "failed to load video"
	case ErrorUnsupportedFormat:
		msg = "stream format not supported"
	case ErrorExhausted:
		msg = "all provider candidates failed"
	case ErrorPlayback:
		msg = "playback failed"
	default:
		msg = "unknown playback error"
	}
	if e.Provider != "" {
		if e.Quality != "" {
			return fmt.Sprintf("%s (provider %s, quality %s)", msg, e.Provider, e.Quality)
		}
		return fmt.Sprintf("%s (provider %s)", msg, e.Provider)
	}
	return msg
}

// Retryable reports whether the Retry action applies to this error
func (e *Error) Retryable() bool {
	return true
}

// NeedsFullReload reports whether retrying means re-running the load
// sequence from scratch rather than restarting the fallback sequence.
func (e *Error) NeedsFullReload() bool {
	return e.Kind == ErrorNoSources || e.Kind == ErrorFetchFailed
}
