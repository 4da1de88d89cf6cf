package interview

import (
	"errors"
	"testing"
)

func TestPushCapture_Lifecycle(t *testing.T) {
	t.Parallel()

	p := NewPushCapture(16000)
	if p.Push([]float32{0.1}) {
		t.Error("Push delivered before Start")
	}

	var got int
	if err := p.Start(func(s []float32) { got += len(s) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(func([]float32) {}); !errors.Is(err, ErrCaptureBusy) {
		t.Errorf("second Start error = %v, want ErrCaptureBusy", err)
	}
	p.Push(make([]float32, 3))
	p.Push(make([]float32, 2))
	if got != 5 {
		t.Errorf("delivered %d samples, want 5", got)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if p.Push([]float32{0.1}) {
		t.Error("Push delivered after Stop")
	}
	if p.SampleRate() != 16000 {
		t.Errorf("SampleRate() = %d", p.SampleRate())
	}
}

func TestPushCapture_Fail(t *testing.T) {
	t.Parallel()

	p := NewPushCapture(48000)
	p.Fail(ErrPermissionDenied)
	if err := p.Start(func([]float32) {}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Start error = %v, want ErrPermissionDenied", err)
	}
	p.Fail(nil)
	if err := p.Start(func([]float32) {}); err != nil {
		t.Errorf("Start after clearing failure: %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateLive:       "live",
		StateError:      "error",
		State(42):       "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
