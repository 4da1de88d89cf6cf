package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/store/memstore"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "store", Check: func(context.Context) error { return errors.New("down") }})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decodeResult(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				Ping("store", memstore.New()),
				Ping("broker", fakePinger{}),
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"store": "ok", "broker": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				Ping("store", fakePinger{err: errors.New("connection refused")}),
				Ping("archive", fakePinger{}),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"store": "fail: connection refused", "archive": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				Ping("store", fakePinger{err: errors.New("timeout")}),
				Ping("broker", fakePinger{err: errors.New("channel closed")}),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"store": "fail: timeout", "broker": "fail: channel closed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(tt.checkers...)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeResult(t, rec)
			wantBody := "ok"
			if tt.wantStatus != http.StatusOK {
				wantBody = "fail"
			}
			if body.Status != wantBody {
				t.Errorf("body status = %q, want %q", body.Status, wantBody)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %q = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_RunsConcurrently(t *testing.T) {
	t.Parallel()

	var inflight, peak atomic.Int32
	slow := func(context.Context) error {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inflight.Add(-1)
		return nil
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}, Checker{Name: "c", Check: slow})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrent checks = %d, want >= 2", peak.Load())
	}
}

func TestReadyz_CheckTimeout(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "hung", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	h.timeout = 20 * time.Millisecond

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := decodeResult(t, rec).Checks["hung"]; got != "fail: "+context.DeadlineExceeded.Error() {
		t.Errorf("hung check = %q", got)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Ping("store", fakePinger{})).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
