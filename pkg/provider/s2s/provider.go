// Package s2s defines the Provider interface for speech-to-speech (S2S) backends.
//
// An S2S provider wraps a real-time voice model that accepts raw audio input
// and answers with synthesised audio in a single stateful session. Examples
// include the Gemini Live API and the OpenAI Realtime API.
//
// The central abstraction is SessionHandle: outbound audio goes in through
// SendAudio, and everything the model sends back (audio, transcript text,
// barge-in signals) comes out of one ordered Events channel. Keeping a single
// channel preserves the relative order of an audio chunk and a following
// interruption, which the playback path depends on.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"time"
)

// Role identifies who produced a transcript fragment.
type Role string

const (
	// RoleUser marks recognised speech of the human participant.
	RoleUser Role = "user"

	// RoleModel marks text spoken or written by the model.
	RoleModel Role = "model"
)

// Event is one inbound message from the remote session. A single event may
// carry several of the fields; consumers apply them in the order Text, Audio,
// Interrupted.
type Event struct {
	// Text is a transcript fragment spoken by Role. Empty when absent.
	Text string

	// Role is the speaker of Text.
	Role Role

	// Audio is raw little-endian PCM16 mono at the provider's
	// [Capabilities.OutputSampleRate]. Nil when absent.
	Audio []byte

	// Interrupted reports that the model detected the user talking over it.
	// Audio that is buffered locally but not yet played must be discarded.
	Interrupted bool

	// TurnComplete marks the end of a model turn.
	TurnComplete bool
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Instructions is the system-level prompt that frames the whole session.
	Instructions string

	// Voice selects a provider-specific prebuilt voice. Empty uses the default.
	Voice string
}

// Capabilities describes static properties of the S2S provider.
// The values are assumed constant for the lifetime of the Provider instance.
type Capabilities struct {
	// InputSampleRate is the PCM16 rate SendAudio expects, in Hz.
	InputSampleRate int

	// OutputSampleRate is the PCM16 rate of Event.Audio, in Hz. It is
	// independent of InputSampleRate.
	OutputSampleRate int

	// MaxSessionDuration is the provider-imposed session lifetime. Zero means
	// no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the prebuilt voice names available.
	Voices []string
}

// SessionHandle represents an open S2S session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one PCM16 mono chunk at the input sample rate. Chunks
	// are transmitted in call order without waiting for acknowledgement.
	// Returns an error if the session is closed or the write fails.
	SendAudio(chunk []byte) error

	// SendText injects a user text turn into the conversation.
	SendText(text string) error

	// Events returns the ordered stream of inbound events. The channel is
	// closed when the session ends for any reason.
	Events() <-chan Event

	// Err reports why the session ended. It is nil while the session is open,
	// after a local Close, and after a clean remote close. It is non-nil when
	// the transport failed or the provider reported an error.
	Err() error

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
type Provider interface {
	// Connect opens a new session and returns once the remote side has
	// acknowledged the configuration, i.e. the session is open and ready for
	// audio. The caller owns the returned handle.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider.
	Capabilities() Capabilities
}

// SessionCapabilities is implemented by handles whose capabilities can differ
// from their provider's, such as sessions opened by a failover provider on a
// secondary backend. Callers prefer it over [Provider.Capabilities].
type SessionCapabilities interface {
	Capabilities() Capabilities
}
