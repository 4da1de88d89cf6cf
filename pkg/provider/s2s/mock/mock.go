// Package mock holds in-memory doubles for [s2s.Provider] and
// [s2s.SessionHandle]. Tests drive the inbound side with Push and End and
// read back what the code under test sent.
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	sess.Push(s2s.Event{Role: s2s.RoleModel, Text: "Tell me about yourself."})
//	sess.End(nil)
package mock

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*Session)(nil)
)

// ConnectCall is one recorded Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg s2s.SessionConfig
}

// Provider hands out Session, creating one on first use.
type Provider struct {
	Session              *Session
	ConnectErr           error
	ProviderCapabilities s2s.Capabilities
	// Block holds Connect until it is closed or the context ends.
	Block chan struct{}

	mu    sync.Mutex
	calls []ConnectCall
}

func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ConnectCall{Ctx: ctx, Cfg: cfg})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Calls returns the Connect calls seen so far.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func (p *Provider) Reset() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

// Session is a scripted realtime session.
type Session struct {
	SendAudioErr error
	SendTextErr  error

	mu     sync.Mutex
	events chan s2s.Event
	ended  bool
	err    error
	audio  [][]byte
	texts  []string
	closes int
}

// NewSession returns a session whose event stream buffers 64 events.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 64)}
}

// Push queues ev for the consumer. Events pushed after End are dropped.
func (s *Session) Push(ev s2s.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.events <- ev
	}
}

// End closes the stream; err becomes the value of Err. Only the first call
// counts.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended, s.err = true, err
	close(s.events)
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, bytes.Clone(chunk))
	return s.SendAudioErr
}

func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.SendTextErr
}

func (s *Session) Events() <-chan s2s.Event { return s.events }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close counts the call and ends the stream without error.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.End(nil)
	return nil
}

// Audio returns the chunks passed to SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audio)
}

// Texts returns the strings passed to SendText.
func (s *Session) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.texts)
}

// Closes reports how often Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
