package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

const (
	defaultTemperature = 0.0
	defaultTimeout     = 20 * time.Second
	maxCommandLength   = 2000
)

const systemPrompt = `You are the command interpreter of a career assistant web app.
Map the user's request to exactly one action:

- switch_tab: open a section of the app. Set params.tab to one of: %s.
- search_jobs: search job boards. Set params.query to the role or keywords and params.location if one is mentioned.
- improve_resume: rewrite or tailor the user's resume. Put the target (role, company, emphasis) in goal.
- start_interview: begin a live mock interview. Put the role or focus in goal if given.
- blocked: the request is unrelated, unsafe, ambiguous, or not supported. Explain why in reason.

Never invent actions. Leave fields that do not apply as empty strings.`

// schema constrains the model's reply. All properties are required so the
// same schema is valid in strict structured-output mode.
func schema(tabs []string) map[string]any {
	actions := make([]string, len(Actions))
	for i, a := range Actions {
		actions[i] = string(a)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": actions},
			"goal":   map[string]any{"type": "string"},
			"params": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tab":      map[string]any{"type": "string", "description": "one of: " + strings.Join(tabs, ", ")},
					"query":    map[string]any{"type": "string"},
					"location": map[string]any{"type": "string"},
				},
				"required":             []string{"tab", "query", "location"},
				"additionalProperties": false,
			},
			"reason": map[string]any{"type": "string"},
		},
		"required":             []string{"action", "goal", "params", "reason"},
		"additionalProperties": false,
	}
}

// Dispatcher interprets free text into a [Result]. It is safe for concurrent
// use.
type Dispatcher struct {
	llm         llm.Provider
	tabs        *TabMatcher
	tabNames    []string
	timeout     time.Duration
	temperature float64
	logger      *slog.Logger
	metrics     *observe.Metrics
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithTabs replaces [DefaultTabs] with a custom alias → tab map.
func WithTabs(aliases map[string]string) Option {
	return func(d *Dispatcher) { d.tabs = NewTabMatcher(aliases) }
}

// WithTimeout bounds each LLM call. Default: 20s.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(t float64) Option {
	return func(d *Dispatcher) { d.temperature = t }
}

// WithLogger sets the logger used for interpretation failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics counts resulting actions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a dispatcher backed by provider.
func NewDispatcher(provider llm.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		llm:         provider,
		tabs:        NewTabMatcher(DefaultTabs),
		timeout:     defaultTimeout,
		temperature: defaultTemperature,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.tabNames = canonicalTabs(d.tabs.aliases)
	return d
}

func canonicalTabs(aliases map[string]string) []string {
	var out []string
	for _, tab := range aliases {
		if !slices.Contains(out, tab) {
			out = append(out, tab)
		}
	}
	slices.Sort(out)
	return out
}

// Interpret converts text into exactly one well-formed [Result]. It never
// returns an error: empty input, a failed or malformed LLM reply, an unknown
// action or an unknown tab all yield the blocked variant with a reason.
func (d *Dispatcher) Interpret(ctx context.Context, text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command interpretation panicked", "panic", r)
			res = Blocked("internal error while interpreting the command")
		}
		if d.metrics != nil {
			d.metrics.RecordCommand(ctx, string(res.Action))
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return Blocked("empty command")
	}
	if len(text) > maxCommandLength {
		return Blocked(fmt.Sprintf("command is too long (%d characters, limit %d)", len(text), maxCommandLength))
	}
	if d.llm == nil {
		return Blocked("no language model configured")
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	raw, err := llm.CompleteJSON[Result](callCtx, d.llm, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPrompt, strings.Join(d.tabNames, ", ")),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  d.temperature,
		ResponseFormat: &llm.ResponseFormat{
			Name:        "command_result",
			Description: "The single action the user's command maps to.",
			Schema:      schema(d.tabNames),
		},
	})
	if err != nil {
		d.logger.Warn("command interpretation failed", "err", err)
		return Blocked("the assistant could not understand that command")
	}
	return d.validate(raw)
}

// validate normalises a decoded model reply into a well-formed Result.
func (d *Dispatcher) validate(r Result) Result {
	r.Action = Action(strings.ToLower(strings.TrimSpace(string(r.Action))))
	r.Goal = strings.TrimSpace(r.Goal)
	r.Reason = strings.TrimSpace(r.Reason)

	switch r.Action {
	case ActionBlocked:
		return Blocked(r.Reason)

	case ActionSwitchTab:
		tab, _, ok := d.tabs.Match(r.Params.Tab)
		if !ok {
			return Blocked(fmt.Sprintf("unknown tab %q", r.Params.Tab))
		}
		return Result{Action: ActionSwitchTab, Goal: r.Goal, Params: Params{Tab: tab}}

	case ActionSearchJobs:
		q := strings.TrimSpace(r.Params.Query)
		if q == "" {
			q = r.Goal
		}
		return Result{
			Action: ActionSearchJobs,
			Goal:   r.Goal,
			Params: Params{Query: q, Location: strings.TrimSpace(r.Params.Location)},
		}

	case ActionImproveResume, ActionStartInterview:
		return Result{Action: r.Action, Goal: r.Goal}

	default:
		return Blocked(fmt.Sprintf("unsupported action %q", r.Action))
	}
}
