// Package mock provides test doubles for the playback package interfaces.
//
// Device records every Schedule call and hands out Voices whose completion the
// test controls:
//
//	dev := &mock.Device{}
//	sched := playback.New(clock, dev)
//	sched.Enqueue(buf)
//	dev.Voices()[0].Finish() // natural completion
package mock

import (
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
	"github.com/AnsuryX/Autojob-Mvp/pkg/audio/playback"
)

var (
	_ playback.Device = (*Device)(nil)
	_ playback.Voice  = (*Voice)(nil)
)

// ScheduleCall records a single invocation of Device.Schedule.
type ScheduleCall struct {
	Buffer audio.Buffer
	At     time.Duration
}

// Device is a mock implementation of playback.Device.
type Device struct {
	mu sync.Mutex

	// ScheduleCalls records every call to Schedule in order.
	ScheduleCalls []ScheduleCall

	voices []*Voice
}

// Schedule records the call and returns a new pending Voice.
func (d *Device) Schedule(buf audio.Buffer, at time.Duration) playback.Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ScheduleCalls = append(d.ScheduleCalls, ScheduleCall{Buffer: buf, At: at})
	v := &Voice{done: make(chan struct{})}
	d.voices = append(d.voices, v)
	return v
}

// Calls returns a copy of the recorded Schedule calls. Thread-safe.
func (d *Device) Calls() []ScheduleCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ScheduleCall, len(d.ScheduleCalls))
	copy(out, d.ScheduleCalls)
	return out
}

// Voices returns every Voice handed out so far, in schedule order.
func (d *Device) Voices() []*Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Voice, len(d.voices))
	copy(out, d.voices)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ScheduleCalls = nil
	d.voices = nil
}

// Voice is a mock implementation of playback.Voice.
type Voice struct {
	once    sync.Once
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// Stop marks the voice stopped and closes Done.
func (v *Voice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
	v.once.Do(func() { close(v.done) })
}

// Finish simulates natural completion.
func (v *Voice) Finish() {
	v.once.Do(func() { close(v.done) })
}

// Done implements playback.Voice.
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stopped reports whether Stop was called.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}
