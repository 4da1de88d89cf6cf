package interview

import (
	"fmt"
	"strings"
)

// maxResumeChars bounds the resume excerpt embedded in the instructions.
const maxResumeChars = 6000

// Candidate is the slice of the user profile an interview needs.
type Candidate struct {
	Name        string
	TargetRoles []string
	// Resume is the content of the primary resume track.
	Resume string
	// Focus optionally narrows the interview ("system design", "behavioural").
	Focus string
}

// BuildInstructions renders the system instruction for a role-relevant mock
// interview of c.
func BuildInstructions(c Candidate) string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "the candidate"
	}
	roles := "a role matching their background"
	if len(c.TargetRoles) > 0 {
		roles = strings.Join(c.TargetRoles, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a professional interviewer conducting a live mock job interview with %s.\n", name)
	fmt.Fprintf(&sb, "They are preparing for: %s.\n", roles)
	if f := strings.TrimSpace(c.Focus); f != "" {
		fmt.Fprintf(&sb, "Concentrate on: %s.\n", f)
	}
	sb.WriteString("Ask one question at a time and wait for the answer. ")
	sb.WriteString("Mix behavioural and role-specific technical questions, follow up on vague answers, ")
	sb.WriteString("and keep your turns short. Speak naturally; do not read lists aloud. ")
	sb.WriteString("When the candidate asks to finish, give brief, concrete feedback on their strongest and weakest answers.\n")

	if resume := strings.TrimSpace(c.Resume); resume != "" {
		if r := []rune(resume); len(r) > maxResumeChars {
			resume = string(r[:maxResumeChars]) + "\n[truncated]"
		}
		sb.WriteString("\nCandidate resume:\n")
		sb.WriteString(resume)
		sb.WriteByte('\n')
	}
	return sb.String()
}
