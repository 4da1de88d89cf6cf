package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
)

// manualTicker replaces the store's ticker with a channel the test drives.
func manualTicker(s *Store) chan time.Time {
	ticks := make(chan time.Time)
	s.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}
	return ticks
}

// waitFor reads from ch until cond holds or the deadline passes.
func waitFor(t *testing.T, ch <-chan State, cond func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if cond(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
			return State{}
		}
	}
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Discovery})
	ch, cancel := s.Subscribe()
	defer cancel()

	err := s.Run(context.Background(), Discovery, func(_ context.Context, rep *Reporter) error {
		rep.Progress(25, "Searching role 1 of 2")
		rep.Progress(60, "Searching role 2 of 2")
		return nil
	}, WithStartMessage("Searching job boards"), WithDoneMessage("Found postings"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var seen []State
	for len(ch) > 0 {
		seen = append(seen, <-ch)
	}
	if len(seen) < 4 {
		t.Fatalf("saw %d updates, want at least 4", len(seen))
	}
	if first := seen[0]; first.Status != StatusRunning || first.Progress != 0 || first.Message != "Searching job boards" {
		t.Errorf("first update = %+v, want running/0", first)
	}
	prev := -1
	for _, st := range seen {
		if st.Progress < prev {
			t.Errorf("progress regressed: %d after %d", st.Progress, prev)
		}
		prev = st.Progress
	}
	last := seen[len(seen)-1]
	if last.Status != StatusCompleted || last.Progress != 100 || last.Message != "Found postings" {
		t.Errorf("final = %+v, want completed/100", last)
	}
}

func TestRun_Failure(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Discovery})
	wantErr := errors.New("job search: upstream 503")

	err := s.Run(context.Background(), Discovery, func(_ context.Context, rep *Reporter) error {
		rep.Progress(40, "Querying")
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run err = %v, want %v", err, wantErr)
	}

	got, _ := s.Get(Discovery)
	if got.Status != StatusError {
		t.Errorf("Status = %q, want error", got.Status)
	}
	if got.Error == "" {
		t.Error("Error field is empty")
	}
	if got.Message != FailedMessage {
		t.Errorf("Message = %q, want %q", got.Message, FailedMessage)
	}
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40 (kept)", got.Progress)
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Resume})
	err := s.Run(context.Background(), Resume, func(context.Context, *Reporter) error {
		panic("nil profile")
	})
	if err == nil {
		t.Fatal("expected error from panicking driver")
	}
	got, _ := s.Get(Resume)
	if got.Status != StatusError || got.Error == "" {
		t.Errorf("state = %+v, want error with text", got)
	}
}

func TestRun_GuardRejectsWhileRunning(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Discovery})
	release := make(chan struct{})
	entered := make(chan struct{})

	if err := s.Start(context.Background(), Discovery, func(_ context.Context, rep *Reporter) error {
		rep.Progress(30, "Working")
		close(entered)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered

	before, _ := s.Get(Discovery)
	var calls atomic.Int32
	second := func(context.Context, *Reporter) error {
		calls.Add(1)
		return nil
	}
	if err := s.Run(context.Background(), Discovery, second); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run err = %v, want ErrAlreadyRunning", err)
	}
	if err := s.Start(context.Background(), Discovery, second); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start err = %v, want ErrAlreadyRunning", err)
	}
	after, _ := s.Get(Discovery)
	if after != before {
		t.Errorf("guarded call changed state: %+v -> %+v", before, after)
	}
	if calls.Load() != 0 {
		t.Error("second driver was invoked")
	}

	close(release)
	s.Wait()
	final, _ := s.Get(Discovery)
	if final.Status != StatusCompleted || final.Progress != 100 {
		t.Errorf("final = %+v, want completed/100", final)
	}
}

func TestRun_GuardIsPerOwner(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	release := make(chan struct{})
	blocked := func(context.Context, *Reporter) error {
		<-release
		return nil
	}
	if err := s.Start(context.Background(), Key("u1", Discovery), blocked); err != nil {
		t.Fatalf("Start u1: %v", err)
	}
	if err := s.Start(context.Background(), Key("u2", Discovery), blocked); err != nil {
		t.Errorf("Start u2 while u1 runs: %v", err)
	}
	if err := s.Start(context.Background(), Key("u1", Discovery), blocked); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start u1 err = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	s.Wait()
	for _, owner := range []string{"u1", "u2"} {
		if st, _ := s.Get(Key(owner, Discovery)); st.Status != StatusCompleted {
			t.Errorf("%s = %+v", owner, st)
		}
	}
}

func TestStart_DetachesFromCallerCancel(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Roadmap})
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	if err := s.Start(ctx, Roadmap, func(ctx context.Context, _ *Reporter) error {
		<-release
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	close(release)
	s.Wait()

	got, _ := s.Get(Roadmap)
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed after caller cancel", got.Status)
	}
}

func TestRun_SimulatedProgressCancelledByResult(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Roadmap})
	ticks := manualTicker(s)
	ch, cancel := s.Subscribe()
	defer cancel()

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), Roadmap, func(context.Context, *Reporter) error {
			<-release
			return nil
		}, WithSimulatedProgress(10, 1500*time.Millisecond, 90, "Analysing skills", "Drafting milestones"))
	}()

	for range 5 {
		ticks <- time.Now()
	}
	st := waitFor(t, ch, func(st State) bool { return st.Progress == 50 })
	if st.Status != StatusRunning || st.Message != "Drafting milestones" {
		t.Errorf("simulated state = %+v", st)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, _ := s.Get(Roadmap)
	if final.Status != StatusCompleted || final.Progress != 100 {
		t.Fatalf("final = %+v, want completed/100", final)
	}

	// The ticker goroutine has been joined: nobody receives further ticks.
	select {
	case ticks <- time.Now():
		t.Error("simulated ticker still running after completion")
	default:
	}

	// Drain: the terminal update must be the last one published.
	var last State
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Status != StatusCompleted {
		t.Errorf("last published = %+v, want completed", last)
	}
}

func TestRun_SimulatedProgressRespectsCeiling(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Roadmap})
	ticks := manualTicker(s)
	ch, cancel := s.Subscribe()
	defer cancel()

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), Roadmap, func(context.Context, *Reporter) error {
			<-release
			return errors.New("llm: rate limited")
		}, WithSimulatedProgress(40, time.Second, 150))
	}()

	for range 4 {
		ticks <- time.Now()
	}
	waitFor(t, ch, func(st State) bool { return st.Progress == 99 })

	close(release)
	<-done

	final, _ := s.Get(Roadmap)
	if final.Status != StatusError || final.Progress != 99 {
		t.Errorf("final = %+v, want error keeping 99", final)
	}
}

func TestReporter_IgnoresLateReports(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Discovery})
	var leaked *Reporter
	if err := s.Run(context.Background(), Discovery, func(_ context.Context, rep *Reporter) error {
		leaked = rep
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	leaked.Progress(10, "late")

	got, _ := s.Get(Discovery)
	if got.Progress != 100 || got.Message == "late" {
		t.Errorf("late report applied: %+v", got)
	}
}

func TestReporter_CapsBelowCompletion(t *testing.T) {
	t.Parallel()

	s := NewStore([]string{Discovery})
	release := make(chan struct{})
	reported := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), Discovery, func(_ context.Context, rep *Reporter) error {
			rep.Progress(100, "almost")
			close(reported)
			<-release
			return nil
		})
	}()
	<-reported
	got, _ := s.Get(Discovery)
	if got.Progress != 99 || got.Status != StatusRunning {
		t.Errorf("state = %+v, want running/99", got)
	}
	close(release)
}

func TestRun_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	s := NewStore(nil, WithMetrics(m))
	_ = s.Run(context.Background(), Key("u1", Discovery), func(context.Context, *Reporter) error { return nil })
	_ = s.Run(context.Background(), Key("u2", Discovery), func(context.Context, *Reporter) error { return errors.New("x") })

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "autojob.task.runs" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				if kind, _ := dp.Attributes.Value("task"); kind.AsString() != Discovery {
					t.Errorf("task label = %q, want the kind", kind.AsString())
				}
				v, _ := dp.Attributes.Value("outcome")
				outcomes[v.AsString()] += dp.Value
			}
		}
	}
	if outcomes["completed"] != 1 || outcomes["error"] != 1 {
		t.Errorf("outcomes = %v, want completed=1 error=1", outcomes)
	}
}

func TestRun_RecordsSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	s := NewStore([]string{Roadmap})
	_ = s.Run(context.Background(), Roadmap, func(context.Context, *Reporter) error {
		return errors.New("model refused")
	})

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "task "+Roadmap {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}
