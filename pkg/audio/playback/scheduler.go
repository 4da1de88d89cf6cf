// Package playback schedules decoded audio buffers for gapless, strictly
// sequential output against a monotonic clock, with hard interruption for
// barge-in.
//
// The [Scheduler] keeps a running start offset. Each enqueued buffer starts
// exactly where the previous one ends, or now if the output has drained:
//
//	start = max(next, clock.Now())
//	next  = start + buffer.Duration()
//
// [Scheduler.Interrupt] stops everything in flight and resets the offset so
// the next buffer plays immediately.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
)

// Voice is a handle to one scheduled buffer on a [Device].
type Voice interface {
	// Stop halts the voice immediately, whether it has started or not.
	// Stop is idempotent.
	Stop()

	// Done is closed when the voice finishes playing or is stopped.
	Done() <-chan struct{}
}

// Device renders buffers at absolute positions on the scheduler's clock.
type Device interface {
	// Schedule arranges for buf to start playing at offset at and returns a
	// handle for it. Implementations must close the voice's Done channel
	// exactly once, on natural completion or on Stop.
	Schedule(buf audio.Buffer, at time.Duration) Voice
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithLogger sets the logger used for debug output. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithInterruptHook registers fn to be called after every [Scheduler.Interrupt]
// with the number of voices that were stopped.
func WithInterruptHook(fn func(stopped int)) Option {
	return func(s *Scheduler) {
		s.onInterrupt = fn
	}
}

// Scheduler maintains ordered, gapless playback of arriving buffers.
// Ordering is strictly by call order of [Scheduler.Enqueue]; payload timing is
// never consulted.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	clock  Clock
	device Device
	log    *slog.Logger

	onInterrupt func(int)

	mu     sync.Mutex
	next   time.Duration
	seq    uint64
	active map[uint64]Voice
	closed bool
}

// New returns a [Scheduler] that renders through device, timed by clock.
func New(clock Clock, device Device, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		device: device,
		log:    slog.Default(),
		active: make(map[uint64]Voice),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules buf immediately after everything already queued, or at
// the current clock time if playback has drained. It returns the computed
// start offset.
//
// Zero-length or malformed buffers are ignored and report ok=false; no error
// is surfaced, this is a fire-and-forget path.
func (s *Scheduler) Enqueue(buf audio.Buffer) (start time.Duration, ok bool) {
	dur := buf.Duration()
	if dur <= 0 || !buf.Valid() {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}

	start = max(s.next, s.clock.Now())
	voice := s.device.Schedule(buf, start)
	s.next = start + dur

	s.seq++
	id := s.seq
	s.active[id] = voice
	go s.reap(id, voice)

	return start, true
}

// reap removes voice from the active set once it completes. A voice removed by
// Interrupt is already gone and the delete is a no-op.
func (s *Scheduler) reap(id uint64, voice Voice) {
	<-voice.Done()
	s.mu.Lock()
	if v, ok := s.active[id]; ok && v == voice {
		delete(s.active, id)
	}
	s.mu.Unlock()
}

// Interrupt stops every scheduled or playing voice, empties the active set and
// resets the start offset to zero, so the next buffer starts at the then
// current clock time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := len(s.active)
	for id, v := range s.active {
		v.Stop()
		delete(s.active, id)
	}
	s.next = 0
	hook := s.onInterrupt
	s.mu.Unlock()

	if stopped > 0 {
		s.log.Debug("playback: interrupted", "stopped", stopped)
	}
	if hook != nil {
		hook(stopped)
	}
}

// Active returns the number of voices currently scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the offset at which the next buffer would start if the
// clock had not advanced. Zero after an interrupt.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close interrupts playback and rejects further buffers. Close is idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Interrupt()
	return nil
}
