// Package command turns free-text user commands ("find me remote Go jobs",
// "open my roadmap") into a single discriminated [Result].
//
// Text understanding is delegated to an [llm.Provider] with a strict JSON
// schema. The [Dispatcher] never returns an error and never panics: any
// failure of the remote call, the response format or the action vocabulary
// converges to the blocked action with a human-readable reason. It performs no
// business logic itself; a [Router] maps each action to the component that
// owns the corresponding state transition.
package command

// Action is the discriminator of a [Result].
type Action string

const (
	ActionSwitchTab      Action = "switch_tab"
	ActionSearchJobs     Action = "search_jobs"
	ActionImproveResume  Action = "improve_resume"
	ActionStartInterview Action = "start_interview"
	ActionBlocked        Action = "blocked"
)

// Actions lists every action the dispatcher can emit, blocked last.
var Actions = []Action{
	ActionSwitchTab,
	ActionSearchJobs,
	ActionImproveResume,
	ActionStartInterview,
	ActionBlocked,
}

// Known reports whether a is part of the action vocabulary.
func (a Action) Known() bool {
	for _, k := range Actions {
		if a == k {
			return true
		}
	}
	return false
}

// Params carries action-specific arguments. Only the fields relevant to the
// action are set:
//
//   - switch_tab: Tab (normalised to a known tab name)
//   - search_jobs: Query, optionally Location
//   - improve_resume, start_interview: none (Goal carries the intent)
type Params struct {
	Tab      string `json:"tab,omitempty"`
	Query    string `json:"query,omitempty"`
	Location string `json:"location,omitempty"`
}

// Result is the outcome of interpreting one command. Exactly one action is
// set; a blocked result always carries a non-empty Reason and triggers no
// side effect.
type Result struct {
	Action Action `json:"action"`
	Goal   string `json:"goal,omitempty"`
	Params Params `json:"params"`
	Reason string `json:"reason,omitempty"`
}

// Blocked returns a blocked result with the given reason.
func Blocked(reason string) Result {
	if reason == "" {
		reason = "command could not be interpreted"
	}
	return Result{Action: ActionBlocked, Reason: reason}
}

// IsBlocked reports whether r is the blocked variant.
func (r Result) IsBlocked() bool {
	return r.Action == ActionBlocked
}

// Tabs of the web UI a switch_tab command may target.
const (
	TabDashboard    = "dashboard"
	TabProfile      = "profile"
	TabDiscovery    = "discovery"
	TabApplications = "applications"
	TabResume       = "resume"
	TabRoadmap      = "roadmap"
	TabInterview    = "interview"
)

// DefaultTabs maps every accepted spelling to its canonical tab.
var DefaultTabs = map[string]string{
	TabDashboard:    TabDashboard,
	TabProfile:      TabProfile,
	TabDiscovery:    TabDiscovery,
	TabApplications: TabApplications,
	TabResume:       TabResume,
	TabRoadmap:      TabRoadmap,
	TabInterview:    TabInterview,

	"home":            TabDashboard,
	"overview":        TabDashboard,
	"jobs":            TabDiscovery,
	"job search":      TabDiscovery,
	"applied":         TabApplications,
	"tracker":         TabApplications,
	"cv":              TabResume,
	"career plan":     TabRoadmap,
	"mock interview":  TabInterview,
	"interview coach": TabInterview,
}
