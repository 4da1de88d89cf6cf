package api_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/AnsuryX/Autojob-Mvp/internal/api"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

type event struct {
	Type         string `json:"type"`
	CaptureRate  int    `json:"capture_rate"`
	PlaybackRate int    `json:"playback_rate"`
	State        string `json:"state"`
	Status       string `json:"status"`
	SessionID    string `json:"session_id"`
	Role         string `json:"role"`
	Text         string `json:"text"`
	Error        string `json:"error"`
}

type message struct {
	binary []byte
	event  event
}

// client reads every message of an interview socket on a background
// goroutine. msgs closes when the socket does.
type client struct {
	conn *websocket.Conn
	msgs chan message
}

func dial(t *testing.T, e *env, query string) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/interview" + query
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{api.UserHeader: {user}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	c := &client{conn: conn, msgs: make(chan message, 256)}
	go func() {
		defer close(c.msgs)
		for {
			typ, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				c.msgs <- message{binary: data}
				continue
			}
			var ev event
			if err := json.Unmarshal(data, &ev); err == nil {
				c.msgs <- message{event: ev}
			}
		}
	}()
	return c
}

func (c *client) send(t *testing.T, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// waitFor returns the first message that satisfies match, skipping others.
func (c *client) waitFor(t *testing.T, what string, match func(message) bool) message {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m, ok := <-c.msgs:
			if !ok {
				t.Fatalf("socket closed while waiting for %s", what)
			}
			if match(m) {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func (c *client) waitEvent(t *testing.T, typ, state string) event {
	t.Helper()
	return c.waitFor(t, typ+" "+state, func(m message) bool {
		return m.binary == nil && m.event.Type == typ && (state == "" || m.event.State == state)
	}).event
}

// waitClosed drains the socket until the server closes it.
func (c *client) waitClosed(t *testing.T) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.msgs:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("socket was not closed")
		}
	}
}

func floatWindow(n int) []byte {
	b := make([]byte, 4*n)
	for i := range n {
		v := float32(math.Sin(float64(i) / 8))
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInterview_RejectsBadRate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/interview?rate=100", user, nil), http.StatusBadRequest)
}

func TestInterview_Session(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	sess := e.s2s.Session
	c := dial(t, e, "?rate=16000&focus=system+design")

	ready := c.waitEvent(t, "ready", "")
	if ready.CaptureRate != 16000 || ready.PlaybackRate != 24000 {
		t.Errorf("ready = %+v", ready)
	}

	c.send(t, map[string]string{"type": "start"})
	c.waitEvent(t, "state", "connecting")
	live := c.waitEvent(t, "state", "live")
	if live.SessionID == "" {
		t.Error("live event has no session id")
	}
	if calls := e.s2s.Calls(); len(calls) != 1 || !strings.Contains(calls[0].Cfg.Instructions, "system design") {
		t.Errorf("connect calls = %+v", calls)
	}

	// Capture: one float32 window becomes one PCM16 chunk.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageBinary, floatWindow(160)); err != nil {
		t.Fatalf("write window: %v", err)
	}
	eventually(t, "audio sent to provider", func() bool { return len(sess.Audio()) == 1 })
	if got := len(sess.Audio()[0]); got != 320 {
		t.Errorf("pcm chunk = %d bytes, want 320", got)
	}

	// A misaligned window is reported, not forwarded.
	if err := c.conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.waitEvent(t, "error", "")

	// Playback: provider audio comes back as paced binary frames.
	sess.Push(s2s.Event{Audio: make([]byte, 2*2400)})
	frame := c.waitFor(t, "playback frame", func(m message) bool { return m.binary != nil })
	if len(frame.binary) == 0 {
		t.Error("empty playback frame")
	}

	sess.Push(s2s.Event{Text: "Tell me about yourself.", Role: s2s.RoleModel})
	tr := c.waitEvent(t, "transcript", "")
	if tr.Role != "model" || tr.Text != "Tell me about yourself." {
		t.Errorf("transcript = %+v", tr)
	}

	c.send(t, map[string]string{"type": "say", "text": "I build backends."})
	eventually(t, "text sent to provider", func() bool { return len(sess.Texts()) == 1 })

	c.send(t, map[string]string{"type": "bogus"})
	if ev := c.waitEvent(t, "error", ""); !strings.Contains(ev.Error, "bogus") {
		t.Errorf("unknown control error = %q", ev.Error)
	}

	c.send(t, map[string]string{"type": "stop"})
	c.waitEvent(t, "state", "idle")
	c.waitClosed(t)

	if n := e.store.CallCount("WriteTranscript"); n != 1 {
		t.Fatalf("WriteTranscript calls = %d, want 1", n)
	}
	resp := e.do(t, http.MethodGet, "/v1/interview/"+live.SessionID+"/transcript", user, nil)
	expectStatus(t, resp, http.StatusOK)
	if entries := decode[[]store.TranscriptEntry](t, resp); len(entries) == 0 || entries[0].UserID != user {
		t.Errorf("entries = %+v", entries)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/v1/interview/"+live.SessionID+"/transcript", "u2", nil), http.StatusNotFound)
}

func TestInterview_CaptureDenied(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	c := dial(t, e, "")
	c.waitEvent(t, "ready", "")

	c.send(t, map[string]string{"type": "start", "capture_error": "permission_denied"})
	ev := c.waitEvent(t, "state", "error")
	if ev.Status == "" {
		t.Error("error state has no status")
	}
	c.waitClosed(t)

	if n := e.store.CallCount("WriteTranscript"); n != 0 {
		t.Errorf("WriteTranscript calls = %d, want 0", n)
	}
}

func TestInterview_ProviderEndsSession(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	c := dial(t, e, "")
	c.waitEvent(t, "ready", "")
	c.send(t, map[string]string{"type": "start"})
	c.waitEvent(t, "state", "live")

	e.s2s.Session.End(nil)
	c.waitEvent(t, "state", "idle")
	c.waitClosed(t)
}
