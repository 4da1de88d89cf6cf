package wsession

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

var errClosed = errors.New("test: session closed")

// serve accepts one websocket and hands it to fn. Returns the ws:// URL.
func serve(t *testing.T, fn func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		fn(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	s := New(conn, "test", errClosed)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// drain collects events until the channel closes.
func drain(t *testing.T, s *Session) []s2s.Event {
	t.Helper()
	var out []s2s.Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("events channel was not closed")
		}
	}
}

func TestSession_EndStates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		frames   []string
		close    websocket.StatusCode
		wantText []string
		wantErr  string
	}{
		{
			name:     "normal close is clean",
			frames:   []string{`{"text":"hello"}`, `not json`, `{"text":"bye"}`},
			close:    websocket.StatusNormalClosure,
			wantText: []string{"hello", "bye"},
		},
		{
			name:    "abnormal close is an error",
			close:   websocket.StatusInternalError,
			wantErr: "test: read:",
		},
		{
			name:     "handler stop records failure",
			frames:   []string{`{"text":"a"}`, `{"fail":"quota exceeded"}`, `{"text":"never"}`},
			close:    websocket.StatusNormalClosure,
			wantText: []string{"a"},
			wantErr:  "quota exceeded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			url := serve(t, func(ctx context.Context, c *websocket.Conn) {
				for _, f := range tt.frames {
					_ = c.Write(ctx, websocket.MessageText, []byte(f))
				}
				c.Close(tt.close, "bye")
			})
			s := dial(t, url)
			s.Start(func(frame []byte) bool {
				f := string(frame)
				if strings.Contains(f, "fail") {
					s.Fail(errors.New("quota exceeded"))
					return false
				}
				return s.Emit(s2s.Event{Text: strings.Trim(strings.TrimPrefix(f, `{"text":`), `"}`)})
			})

			var got []string
			for _, ev := range drain(t, s) {
				got = append(got, ev.Text)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantText, ",") {
				t.Errorf("texts = %v, want %v", got, tt.wantText)
			}
			err := s.Err()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Err() = %v, want nil", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("Err() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSession_CloseIsIdempotentAndBlocksWrites(t *testing.T) {
	t.Parallel()

	url := serve(t, func(ctx context.Context, c *websocket.Conn) {
		<-c.CloseRead(ctx).Done()
	})
	s := dial(t, url)
	s.Start(func([]byte) bool { return true })

	if err := s.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON before Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.WriteJSON(map[string]string{"type": "ping"}); !errors.Is(err, errClosed) {
		t.Errorf("WriteJSON after Close = %v, want %v", err, errClosed)
	}
	drain(t, s)
	if err := s.Err(); err != nil {
		t.Errorf("Err() after local Close = %v, want nil", err)
	}
}
