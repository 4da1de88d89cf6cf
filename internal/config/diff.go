package config

import (
	"fmt"
	"maps"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RoadmapChanged is set when any simulated progress setting of the
	// roadmap task changed.
	RoadmapChanged bool
	NewTasks       TasksConfig

	// RestartRequired lists sections that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// IsZero reports whether nothing changed.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.RoadmapChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{NewTasks: new.Tasks}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ot, nt := old.Tasks, new.Tasks
	if ot.RoadmapTick != nt.RoadmapTick || ot.RoadmapStep != nt.RoadmapStep || ot.RoadmapCeiling != nt.RoadmapCeiling {
		d.RoadmapChanged = true
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server", old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.ObserveAddr != new.Server.ObserveAddr ||
		!equalTLS(old.Server.TLS, new.Server.TLS))
	restart("providers", !equalProviders(old.Providers, new.Providers))
	restart("store", old.Store != new.Store)
	restart("storage", !equalR2(old.Storage.R2, new.Storage.R2))
	restart("broker", old.Broker != new.Broker)
	restart("interview", old.Interview != new.Interview)
	restart("tasks", ot.SearchConcurrency != nt.SearchConcurrency || ot.LLMTimeout != nt.LLMTimeout)
	restart("commands", old.Commands.Timeout != new.Commands.Timeout || !maps.Equal(old.Commands.Tabs, new.Commands.Tabs))
	restart("resilience", old.Resilience != new.Resilience)

	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalR2(a, b *R2Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalProviders(a, b ProvidersConfig) bool {
	return equalEntry(a.LLM, b.LLM) &&
		equalEntry(a.S2S, b.S2S) &&
		equalEntry(a.Embeddings, b.Embeddings) &&
		equalEntry(a.JobSearch, b.JobSearch) &&
		equalEntries(a.LLMFallbacks, b.LLMFallbacks) &&
		equalEntries(a.S2SFallbacks, b.S2SFallbacks) &&
		equalEntries(a.EmbeddingsFallbacks, b.EmbeddingsFallbacks)
}

func equalEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}

// equalEntry compares the scalar fields and the top-level option keys.
// Nested option values are compared by their printed form.
func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return maps.EqualFunc(a.Options, b.Options, func(x, y any) bool {
		return fmt.Sprint(x) == fmt.Sprint(y)
	})
}
