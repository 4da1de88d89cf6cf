// Package gemini is the [s2s.Provider] for the Gemini Live
// BidiGenerateContent websocket API. The interviewer speaks 24 kHz PCM16 and
// listens at 16 kHz; both transcripts are requested so the interview log has
// text for each turn.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
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
	defaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	endpoint       = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	inputRate  = 16000
	outputRate = 24000
)

// ErrSessionClosed is returned by send methods after Close.
var ErrSessionClosed = errors.New("gemini: session closed")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the Live model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL replaces the websocket base, e.g. with a local test server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithKeepalive sets the ping interval. Zero or less disables pings.
func WithKeepalive(d time.Duration) Option {
	return func(p *Provider) { p.keepalive = d }
}

// Provider opens Gemini Live sessions.
type Provider struct {
	apiKey    string
	model     string
	baseURL   string
	keepalive time.Duration
}

// New returns a provider authenticating with apiKey. Sessions ping every 20s
// by default so idle interviews are not dropped by intermediaries.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL, keepalive: 20 * time.Second}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities implements [s2s.Provider].
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		InputSampleRate:    inputRate,
		OutputSampleRate:   outputRate,
		MaxSessionDuration: 15 * time.Minute,
		Voices:             []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck", "Zephyr"},
	}
}

// Connect sends the setup message and returns once the server acknowledged
// it with setupComplete.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	u := p.baseURL + endpoint + "?key=" + url.QueryEscape(p.apiKey)
	conn, err := wsession.Dial(ctx, u, http.Header{"Content-Type": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	s := &session{Session: wsession.New(conn, "gemini", ErrSessionClosed)}
	if err := s.WriteJSON(setupFor(p.model, cfg)); err != nil {
		s.Abort()
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	if err := s.awaitSetup(ctx); err != nil {
		s.Abort()
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	s.Start(s.handle)
	s.Keepalive(p.keepalive)
	return s, nil
}

// Wire format. Only the fields autojob reads or writes are modelled.

type (
	part struct {
		Text       string `json:"text,omitempty"`
		InlineData *blob  `json:"inlineData,omitempty"`
	}
	blob struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	}
	content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	setup struct {
		Model             string    `json:"model"`
		GenerationConfig  genCfg    `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
		InputTranscript   *struct{} `json:"inputAudioTranscription,omitempty"`
		OutputTranscript  *struct{} `json:"outputAudioTranscription,omitempty"`
	}
	genCfg struct {
		ResponseModalities []string `json:"responseModalities"`
		SpeechConfig       *speech  `json:"speechConfig,omitempty"`
	}
	speech struct {
		VoiceConfig struct {
			PrebuiltVoiceConfig struct {
				VoiceName string `json:"voiceName"`
			} `json:"prebuiltVoiceConfig"`
		} `json:"voiceConfig"`
	}
	inbound struct {
		SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
		ServerContent *serverContent   `json:"serverContent,omitempty"`
		Error         *apiError        `json:"error,omitempty"`
	}
	serverContent struct {
		ModelTurn           *content    `json:"modelTurn,omitempty"`
		TurnComplete        bool        `json:"turnComplete,omitempty"`
		Interrupted         bool        `json:"interrupted,omitempty"`
		InputTranscription  *transcript `json:"inputTranscription,omitempty"`
		OutputTranscription *transcript `json:"outputTranscription,omitempty"`
	}
	transcript struct {
		Text string `json:"text"`
	}
	apiError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("gemini: %s (code %d)", msg, e.Code)
}

func setupFor(model string, cfg s2s.SessionConfig) map[string]setup {
	st := setup{
		Model:            "models/" + model,
		GenerationConfig: genCfg{ResponseModalities: []string{"AUDIO"}},
		InputTranscript:  &struct{}{},
		OutputTranscript: &struct{}{},
	}
	if cfg.Instructions != "" {
		st.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.Voice != "" {
		sp := &speech{}
		sp.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
		st.GenerationConfig.SpeechConfig = sp
	}
	return map[string]setup{"setup": st}
}

type session struct {
	*wsession.Session
}

// awaitSetup reads frames until setupComplete or a server error arrives.
func (s *session) awaitSetup(ctx context.Context) error {
	for {
		_, frame, err := s.Conn().Read(ctx)
		if err != nil {
			return fmt.Errorf("await setupComplete: %w", err)
		}
		var msg inbound
		if json.Unmarshal(frame, &msg) != nil {
			continue
		}
		switch {
		case msg.Error != nil:
			return msg.Error
		case msg.SetupComplete != nil:
			return nil
		}
	}
}

// handle emits transcripts first, then model parts, then the turn signal.
func (s *session) handle(frame []byte) bool {
	var msg inbound
	if json.Unmarshal(frame, &msg) != nil {
		return true
	}
	if msg.Error != nil {
		s.Fail(msg.Error)
		return false
	}
	sc := msg.ServerContent
	if sc == nil {
		return true
	}

	var evs []s2s.Event
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		evs = append(evs, s2s.Event{Role: s2s.RoleUser, Text: t.Text})
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		evs = append(evs, s2s.Event{Role: s2s.RoleModel, Text: t.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			ev := s2s.Event{Role: s2s.RoleModel, Text: p.Text}
			if p.InlineData != nil {
				if pcm, err := audio.DecodeBase64(p.InlineData.Data); err == nil && len(pcm) > 0 {
					ev.Audio = pcm
				}
			}
			if ev.Text != "" || ev.Audio != nil {
				evs = append(evs, ev)
			}
		}
	}
	if sc.Interrupted || sc.TurnComplete {
		evs = append(evs, s2s.Event{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete})
	}
	for _, ev := range evs {
		if !s.Emit(ev) {
			return false
		}
	}
	return true
}

// SendAudio streams one 16 kHz PCM16 chunk as realtimeInput.
func (s *session) SendAudio(chunk []byte) error {
	return s.WriteJSON(map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []blob{{
				MIMEType: fmt.Sprintf("audio/pcm;rate=%d", inputRate),
				Data:     audio.EncodeBase64(chunk),
			}},
		},
	})
}

// SendText adds a complete user turn as clientContent.
func (s *session) SendText(text string) error {
	return s.WriteJSON(map[string]any{
		"clientContent": map[string]any{
			"turns":        []content{{Role: "user", Parts: []part{{Text: text}}}},
			"turnComplete": true,
		},
	})
}
