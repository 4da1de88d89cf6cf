package interview

import (
	"strings"
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

// Entry is one transcript fragment.
type Entry struct {
	Role s2s.Role  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcript is the ordered, append-only record of one session. Entries are
// never removed or rewritten while the session lasts. Safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

// Append adds an entry. Empty text is ignored.
func (t *Transcript) Append(e Entry) bool {
	if strings.TrimSpace(e.Text) == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	return true
}

// Entries returns a copy of all entries in arrival order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Render formats entries as "Speaker: text" lines, joining consecutive
// fragments of the same speaker into one line. Streaming transcription
// delivers words in small pieces; the rendered form is what gets archived.
func Render(entries []Entry) string {
	var sb strings.Builder
	var prev s2s.Role
	for i, e := range entries {
		if i == 0 || e.Role != prev {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(speaker(e.Role))
			sb.WriteString(":")
		}
		text := e.Text
		if !strings.HasPrefix(text, " ") {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimRight(text, "\n"))
		prev = e.Role
	}
	return sb.String()
}

func speaker(r s2s.Role) string {
	if r == s2s.RoleUser {
		return "Candidate"
	}
	return "Interviewer"
}
