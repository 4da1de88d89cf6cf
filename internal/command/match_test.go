package command_test

import (
	"testing"

	"github.com/AnsuryX/Autojob-Mvp/internal/command"
)

func TestTabMatcher(t *testing.T) {
	t.Parallel()

	m := command.NewTabMatcher(command.DefaultTabs)

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"roadmap", "roadmap", true},
		{"Roadmap", "roadmap", true},
		{"  interview  ", "interview", true},
		{"applications page", "applications", true},
		{"job-search", "discovery", true},
		{"jobs", "discovery", true},
		{"profle", "profile", true},
		{"intervew", "interview", true},
		{"aplications", "applications", true},
		{"xyzzy", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, score, ok := m.Match(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Match(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
			if ok && (score <= 0 || score > 1) {
				t.Errorf("score = %f, want (0, 1]", score)
			}
		})
	}
}

func TestTabMatcher_ExactScoresOne(t *testing.T) {
	t.Parallel()

	m := command.NewTabMatcher(map[string]string{"Settings": "settings"})
	if _, score, ok := m.Match("settings"); !ok || score != 1 {
		t.Errorf("exact match score = %f, ok = %v", score, ok)
	}
}
