package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqplib "github.com/streadway/amqp"

	"github.com/AnsuryX/Autojob-Mvp/internal/task"
)

type published struct {
	exchange string
	key      string
	msg      amqplib.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	kinds      []string
	msgs       []published
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqplib.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	f.kinds = append(f.kinds, kind)
	return f.declareErr
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqplib.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func TestNew_DeclaresTopicExchange(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	if _, err := New(ch); err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != DefaultExchange || ch.kinds[0] != amqplib.ExchangeTopic {
		t.Errorf("declared %v (%v), want %s topic", ch.declared, ch.kinds, DefaultExchange)
	}

	failing := &fakeChannel{declareErr: errors.New("access refused")}
	if _, err := New(failing, WithExchange("custom")); err == nil {
		t.Error("expected error when exchange declaration fails")
	}
}

func TestPublish_EncodesState(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p, err := New(ch)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	st := task.State{ID: task.Roadmap, Status: task.StatusRunning, Progress: 30, Message: "Drafting", UpdatedAt: at}
	if err := p.Publish(st); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs := ch.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.exchange != DefaultExchange || m.key != "task.roadmap" {
		t.Errorf("exchange/key = %s/%s", m.exchange, m.key)
	}
	if m.msg.ContentType != "application/json" || m.msg.DeliveryMode != amqplib.Persistent {
		t.Errorf("publishing headers = %+v", m.msg)
	}
	var got task.State
	if err := json.Unmarshal(m.msg.Body, &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if got.ID != st.ID || got.Progress != 30 || got.Status != task.StatusRunning {
		t.Errorf("decoded = %+v", got)
	}
}

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want string
	}{
		{id: task.Roadmap, want: "task.roadmap"},
		{id: task.Key("u1", task.Discovery), want: "task.discovery.u1"},
		{id: task.Key("team/a", task.Resume), want: "task.resume.team/a"},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.id); got != tt.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestPublish_WrapsError(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p, _ := New(ch)
	ch.publishErr = amqplib.ErrClosed
	err := p.Publish(task.State{ID: task.Discovery})
	if !errors.Is(err, amqplib.ErrClosed) {
		t.Errorf("err = %v, want wrapped ErrClosed", err)
	}
}

func TestRun_ForwardsStoreChanges(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p, _ := New(ch)
	store := task.NewStore([]string{task.Discovery})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, store) }()

	// Wait until the subscription is registered before updating.
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.Update(task.Discovery, task.Patch{Message: task.Ptr("ping")})
		if len(ch.published()) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := store.Run(ctx, task.Discovery, func(context.Context, *task.Reporter) error { return nil }); err != nil {
		t.Fatalf("store.Run: %v", err)
	}

	waitUntil := time.Now().Add(2 * time.Second)
	for time.Now().Before(waitUntil) {
		if msgs := ch.published(); len(msgs) > 0 {
			var last task.State
			_ = json.Unmarshal(msgs[len(msgs)-1].msg.Body, &last)
			if last.Status == task.StatusCompleted {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	msgs := ch.published()
	if len(msgs) == 0 {
		t.Fatal("nothing published")
	}
	var last task.State
	if err := json.Unmarshal(msgs[len(msgs)-1].msg.Body, &last); err != nil {
		t.Fatalf("body: %v", err)
	}
	if last.Status != task.StatusCompleted || last.Progress != 100 {
		t.Errorf("last published = %+v, want completed/100", last)
	}
}

func TestClose_ClosesChannel(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p, _ := New(ch)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Error("channel not closed")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping without connection = %v, want nil", err)
	}
}
