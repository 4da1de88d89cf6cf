package interview

import "errors"

// State is the lifecycle state of a [Controller].
type State int

const (
	// StateIdle means no session is open. Start is allowed.
	StateIdle State = iota
	// StateConnecting means capture is being acquired and the remote session
	// is being opened.
	StateConnecting
	// StateLive means the session is open and audio flows both ways.
	StateLive
	// StateError means the last session failed. Start is allowed again.
	StateError
)

// String returns the lower-case name used in logs and on the wire.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyStarted is returned by Start while a session is connecting
	// or live.
	ErrAlreadyStarted = errors.New("interview: session already started")

	// ErrStopped is returned by Start when Stop was called before the session
	// finished connecting.
	ErrStopped = errors.New("interview: stopped while connecting")

	// ErrNotLive is returned by operations that need an open session.
	ErrNotLive = errors.New("interview: session is not live")

	// ErrPermissionDenied reports that the user refused microphone access.
	ErrPermissionDenied = errors.New("interview: microphone permission denied")

	// ErrNoDevice reports that no capture device is available.
	ErrNoDevice = errors.New("interview: no microphone available")

	// ErrCaptureBusy is returned by a capture source that is already started.
	ErrCaptureBusy = errors.New("interview: capture already started")
)

// captureStatus turns a capture failure into user-facing status text.
func captureStatus(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone permission denied"
	case errors.Is(err, ErrNoDevice):
		return "No microphone found"
	default:
		return "Microphone unavailable: " + err.Error()
	}
}
