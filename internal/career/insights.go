package career

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

// Insights is a best-effort market snapshot for a role. Every field may be
// empty.
type Insights struct {
	Role        string    `json:"role"`
	Demand      string    `json:"demand"`
	SalaryRange string    `json:"salary_range"`
	TopSkills   []string  `json:"top_skills"`
	Trends      []string  `json:"trends"`
	GeneratedAt time.Time `json:"generated_at"`
}

var insightsFormat = &llm.ResponseFormat{
	Name:        "market_insights",
	Description: "A short market snapshot for the role.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"demand":       map[string]any{"type": "string"},
			"salary_range": map[string]any{"type": "string"},
			"top_skills":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"trends":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"demand", "salary_range", "top_skills", "trends"},
		"additionalProperties": false,
	},
}

// Insights returns a market snapshot for role, near location when given. It
// never fails: any provider or parse error yields empty insights, which are
// not cached so a later call can retry.
func (s *Service) Insights(ctx context.Context, userID, role, location string) Insights {
	role = strings.TrimSpace(role)
	empty := Insights{Role: role, TopSkills: []string{}, Trends: []string{}, GeneratedAt: s.cfg.Now()}
	if role == "" {
		return empty
	}

	key := userID + "\x00" + strings.ToLower(role) + "\x00" + strings.ToLower(location)
	s.mu.RLock()
	cached, ok := s.insights[key]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	prompt := fmt.Sprintf("Role: %s", role)
	if location != "" {
		prompt += "\nLocation: " + location
	}
	type reply struct {
		Demand      string   `json:"demand"`
		SalaryRange string   `json:"salary_range"`
		TopSkills   []string `json:"top_skills"`
		Trends      []string `json:"trends"`
	}
	out, err := complete[reply](ctx, s, "insights", llm.CompletionRequest{
		SystemPrompt:   "You are a labour market analyst. Summarise current hiring demand, typical salary range, the most requested skills and notable trends.",
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature:    0.2,
		ResponseFormat: insightsFormat,
	})
	if err != nil {
		s.logger.Debug("career: insights unavailable", "role", role, "err", err)
		return empty
	}

	ins := Insights{
		Role:        role,
		Demand:      strings.TrimSpace(out.Demand),
		SalaryRange: strings.TrimSpace(out.SalaryRange),
		TopSkills:   nonEmpty(out.TopSkills),
		Trends:      nonEmpty(out.Trends),
		GeneratedAt: s.cfg.Now(),
	}
	s.mu.Lock()
	s.insights[key] = ins
	s.mu.Unlock()
	return ins
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
