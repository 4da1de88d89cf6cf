package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
	"github.com/AnsuryX/Autojob-Mvp/pkg/audio/playback"
	"github.com/AnsuryX/Autojob-Mvp/pkg/audio/playback/mock"
)

// monoBuffer returns a silent mono buffer of duration d at 24 kHz.
func monoBuffer(d time.Duration) audio.Buffer {
	frames := int(int64(d) * 24000 / int64(time.Second))
	return audio.Buffer{SampleRate: 24000, Channels: [][]float32{make([]float32, frames)}}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_Gapless(t *testing.T) {
	t.Parallel()

	clock := &playback.ManualClock{}
	clock.Set(100 * time.Millisecond)
	dev := &mock.Device{}
	s := playback.New(clock, dev)

	durations := []time.Duration{
		40 * time.Millisecond,
		120 * time.Millisecond,
		20 * time.Millisecond,
		500 * time.Millisecond,
	}
	offset := clock.Now()
	var sum time.Duration
	for i, d := range durations {
		start, ok := s.Enqueue(monoBuffer(d))
		if !ok {
			t.Fatalf("Enqueue(%d) rejected", i)
		}
		if want := offset + sum; start != want {
			t.Errorf("buffer %d start = %v, want %v", i, start, want)
		}
		sum += d
	}

	calls := dev.Calls()
	if len(calls) != len(durations) {
		t.Fatalf("Schedule calls = %d, want %d", len(calls), len(durations))
	}
	for i := 1; i < len(calls); i++ {
		prevEnd := calls[i-1].At + calls[i-1].Buffer.Duration()
		if calls[i].At != prevEnd {
			t.Errorf("buffer %d starts at %v, previous ends at %v", i, calls[i].At, prevEnd)
		}
	}
	if got := s.Active(); got != len(durations) {
		t.Errorf("Active() = %d, want %d", got, len(durations))
	}
	if got := s.NextStart(); got != offset+sum {
		t.Errorf("NextStart() = %v, want %v", got, offset+sum)
	}
}

func TestScheduler_ClampsToClockAfterDrain(t *testing.T) {
	t.Parallel()

	clock := &playback.ManualClock{}
	s := playback.New(clock, &mock.Device{})

	s.Enqueue(monoBuffer(50 * time.Millisecond))
	clock.Set(time.Second)

	start, _ := s.Enqueue(monoBuffer(50 * time.Millisecond))
	if start != time.Second {
		t.Errorf("start = %v, want clock time 1s", start)
	}
}

func TestScheduler_Interrupt(t *testing.T) {
	t.Parallel()

	clock := &playback.ManualClock{}
	dev := &mock.Device{}
	var (
		hookMu  sync.Mutex
		stopped []int
	)
	s := playback.New(clock, dev, playback.WithInterruptHook(func(n int) {
		hookMu.Lock()
		stopped = append(stopped, n)
		hookMu.Unlock()
	}))

	for range 5 {
		s.Enqueue(monoBuffer(100 * time.Millisecond))
	}
	// The first buffer is already playing.
	clock.Set(50 * time.Millisecond)

	s.Interrupt()

	if got := s.Active(); got != 0 {
		t.Errorf("Active() after interrupt = %d, want 0", got)
	}
	if got := s.NextStart(); got != 0 {
		t.Errorf("NextStart() after interrupt = %v, want 0", got)
	}
	for i, v := range dev.Voices() {
		if !v.Stopped() {
			t.Errorf("voice %d not stopped", i)
		}
	}
	hookMu.Lock()
	if len(stopped) != 1 || stopped[0] != 5 {
		t.Errorf("interrupt hook calls = %v, want [5]", stopped)
	}
	hookMu.Unlock()

	clock.Set(70 * time.Millisecond)
	start, ok := s.Enqueue(monoBuffer(10 * time.Millisecond))
	if !ok || start != 70*time.Millisecond {
		t.Errorf("post-interrupt start = %v (ok=%v), want 70ms", start, ok)
	}
}

func TestScheduler_InterruptEmpty(t *testing.T) {
	t.Parallel()
	s := playback.New(&playback.ManualClock{}, &mock.Device{})
	s.Interrupt()
	if s.Active() != 0 || s.NextStart() != 0 {
		t.Error("interrupt on empty scheduler changed state")
	}
}

func TestScheduler_NaturalCompletionRemovesVoice(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.New(&playback.ManualClock{}, dev)
	s.Enqueue(monoBuffer(10 * time.Millisecond))
	s.Enqueue(monoBuffer(10 * time.Millisecond))

	dev.Voices()[0].Finish()
	waitFor(t, func() bool { return s.Active() == 1 })

	dev.Voices()[1].Finish()
	waitFor(t, func() bool { return s.Active() == 0 })

	// Completion does not rewind the offset.
	if got := s.NextStart(); got != 20*time.Millisecond {
		t.Errorf("NextStart() = %v, want 20ms", got)
	}
}

func TestScheduler_IgnoresInvalidBuffers(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.New(&playback.ManualClock{}, dev)

	for _, buf := range []audio.Buffer{
		{},
		{SampleRate: 24000},
		{SampleRate: 24000, Channels: [][]float32{{}}},
		{SampleRate: 0, Channels: [][]float32{make([]float32, 100)}},
		{SampleRate: 24000, Channels: [][]float32{make([]float32, 10), make([]float32, 9)}},
	} {
		if _, ok := s.Enqueue(buf); ok {
			t.Errorf("Enqueue(%+v) accepted", buf)
		}
	}
	if len(dev.Calls()) != 0 {
		t.Errorf("device received %d schedules, want 0", len(dev.Calls()))
	}
	if s.NextStart() != 0 {
		t.Errorf("NextStart() = %v, want 0", s.NextStart())
	}
}

func TestScheduler_Close(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.New(&playback.ManualClock{}, dev)
	s.Enqueue(monoBuffer(10 * time.Millisecond))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !dev.Voices()[0].Stopped() {
		t.Error("Close did not stop the active voice")
	}
	if _, ok := s.Enqueue(monoBuffer(10 * time.Millisecond)); ok {
		t.Error("Enqueue after Close accepted")
	}
}
