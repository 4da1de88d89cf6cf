// Package audio holds the PCM primitives shared by the interview pipeline:
// wire encoding, float/int16 sample conversion, sample-rate and channel
// conversion, and the decoded [Buffer] consumed by the playback scheduler.
package audio

import "time"

// Chunk is a single piece of raw PCM16 audio flowing through the interview
// pipeline, either captured from the user or received from the remote model.
// Chunks are ephemeral: they are created on capture or receipt and dropped once
// transmitted or scheduled.
type Chunk struct {
	// Data is little-endian, interleaved PCM16.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for model input, 24000 for model output).
	SampleRate int

	// Channels is the interleaved channel count. The pipeline is mono.
	Channels int

	// Seq is the monotonic arrival order of this chunk within its stream.
	Seq uint64
}

// Duration returns the playback length of the chunk. Malformed chunks (zero
// rate or channels) report zero.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Buffer is decoded audio: one normalised float slice per channel, all of
// equal length, at SampleRate.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames in the buffer, or zero when the
// channels are ragged.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	n := len(b.Channels[0])
	for _, ch := range b.Channels[1:] {
		if len(ch) != n {
			return 0
		}
	}
	return n
}

// Duration returns the playback length of the buffer. A buffer with a
// non-positive sample rate or ragged channels has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Valid reports whether the buffer can be scheduled for playback.
func (b Buffer) Valid() bool {
	return b.SampleRate > 0 && b.Frames() > 0
}
