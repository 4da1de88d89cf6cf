// Package openai is the [s2s.Provider] for the OpenAI Realtime websocket API.
//
// Audio is PCM16 at 24 kHz in both directions. Turn taking uses server-side
// VAD, and the start of user speech is reported as an interruption so the
// candidate can talk over the interviewer.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s/internal/wsession"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*session)(nil)
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	sampleRate     = 24000
)

// ErrSessionClosed is returned by send methods after Close.
var ErrSessionClosed = errors.New("openai: session closed")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the realtime model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL replaces the websocket endpoint, e.g. with a local test server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithTranscriptionModel selects the model transcribing candidate speech.
// Empty disables user transcripts.
func WithTranscriptionModel(model string) Option {
	return func(p *Provider) { p.transcriptionModel = model }
}

// Provider opens OpenAI Realtime sessions.
type Provider struct {
	apiKey             string
	model              string
	baseURL            string
	transcriptionModel string
}

// New returns a provider authenticating with apiKey. User speech is
// transcribed with whisper-1 unless overridden.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL, transcriptionModel: "whisper-1"}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities implements [s2s.Provider].
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		InputSampleRate:    sampleRate,
		OutputSampleRate:   sampleRate,
		MaxSessionDuration: 30 * time.Minute,
		Voices:             []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"},
	}
}

// Connect dials the endpoint and sends session.update. The API applies the
// update before any later frame, so the session accepts audio immediately.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	conn, err := wsession.Dial(ctx, p.baseURL+"?model="+url.QueryEscape(p.model), http.Header{
		"Authorization": {"Bearer " + p.apiKey},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	s := &session{Session: wsession.New(conn, "openai", ErrSessionClosed)}
	if err := s.WriteJSON(sessionUpdate(cfg, p.transcriptionModel)); err != nil {
		s.Abort()
		return nil, fmt.Errorf("openai: session update: %w", err)
	}
	s.Start(s.handle)
	return s, nil
}

type sessionParams struct {
	Modalities              []string          `json:"modalities"`
	Voice                   string            `json:"voice,omitempty"`
	Instructions            string            `json:"instructions,omitempty"`
	InputAudioFormat        string            `json:"input_audio_format"`
	OutputAudioFormat       string            `json:"output_audio_format"`
	InputAudioTranscription map[string]string `json:"input_audio_transcription,omitempty"`
	TurnDetection           map[string]string `json:"turn_detection"`
}

func sessionUpdate(cfg s2s.SessionConfig, transcriptionModel string) map[string]any {
	params := sessionParams{
		Modalities:        []string{"audio", "text"},
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection:     map[string]string{"type": "server_vad"},
	}
	if transcriptionModel != "" {
		params.InputAudioTranscription = map[string]string{"model": transcriptionModel}
	}
	return map[string]any{"type": "session.update", "session": params}
}

// serverEvent holds the union of fields of the events handled below.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type session struct {
	*wsession.Session

	// transcript collects response.audio_transcript.delta until .done. Only
	// the receive goroutine touches it.
	transcript strings.Builder
	sendMu     sync.Mutex
}

func (s *session) handle(frame []byte) bool {
	var ev serverEvent
	if json.Unmarshal(frame, &ev) != nil {
		return true
	}
	switch ev.Type {
	case "response.audio.delta":
		if pcm, err := audio.DecodeBase64(ev.Delta); err == nil && len(pcm) > 0 {
			return s.Emit(s2s.Event{Role: s2s.RoleModel, Audio: pcm})
		}
	case "response.audio_transcript.delta":
		s.transcript.WriteString(ev.Delta)
	case "response.audio_transcript.done":
		text := s.transcript.String()
		s.transcript.Reset()
		if text == "" {
			text = ev.Transcript
		}
		if text != "" {
			return s.Emit(s2s.Event{Role: s2s.RoleModel, Text: text})
		}
	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript != "" {
			return s.Emit(s2s.Event{Role: s2s.RoleUser, Text: ev.Transcript})
		}
	case "input_audio_buffer.speech_started":
		return s.Emit(s2s.Event{Interrupted: true})
	case "response.done":
		return s.Emit(s2s.Event{TurnComplete: true})
	case "error":
		msg := "unknown error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		s.Fail(fmt.Errorf("openai: %s", msg))
		return false
	}
	return true
}

// SendAudio appends one 24 kHz PCM16 chunk to the input buffer.
func (s *session) SendAudio(chunk []byte) error {
	return s.WriteJSON(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": audio.EncodeBase64(chunk),
	})
}

// SendText adds a user message and requests a response. The two frames are
// sent under one lock so concurrent calls cannot interleave them.
func (s *session) SendText(text string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "message",
			"role":    "user",
			"content": []map[string]string{{"type": "input_text", "text": text}},
		},
	}
	if err := s.WriteJSON(item); err != nil {
		return err
	}
	return s.WriteJSON(map[string]string{"type": "response.create"})
}
