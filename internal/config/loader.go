package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "gemini-genai"},
	"s2s":        {"openai-realtime", "gemini-live"},
	"embeddings": {"openai", "ollama"},
	"jobsearch":  {"serpapi"},
}

// LoadEnv loads KEY=value pairs from each existing dotenv file into the
// process environment. Variables that are already set win. Missing files are
// skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// ${VAR} references in the file are expanded from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands environment references, decodes a YAML config from
// r and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), expandVar)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandVar resolves ${VAR} and ${VAR:-default}. A lone "$$" yields "$".
func expandVar(key string) string {
	if key == "$" {
		return "$"
	}
	name, def, hasDef := cutDefault(key)
	if v, ok := os.LookupEnv(name); ok && (v != "" || !hasDef) {
		return v
	}
	return def
}

func cutDefault(key string) (name, def string, ok bool) {
	for i := 0; i+1 < len(key); i++ {
		if key[i] == ':' && key[i+1] == '-' {
			return key[:i], key[i+2:], true
		}
	}
	return key, "", false
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	p := cfg.Providers
	if p.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("s2s", p.S2S.Name)
	validateProviderName("embeddings", p.Embeddings.Name)
	validateProviderName("jobsearch", p.JobSearch.Name)
	errs = append(errs, validateFallbacks("llm", p.LLM.Name, p.LLMFallbacks)...)
	errs = append(errs, validateFallbacks("s2s", p.S2S.Name, p.S2SFallbacks)...)
	errs = append(errs, validateFallbacks("embeddings", p.Embeddings.Name, p.EmbeddingsFallbacks)...)

	if p.S2S.Name == "" {
		slog.Warn("providers.s2s is not configured; mock interviews are disabled")
	}
	if p.JobSearch.Name == "" {
		slog.Warn("providers.jobsearch is not configured; discovery will return no postings")
	}

	// Store
	if cfg.Store.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("store.embedding_dimensions %d must not be negative", cfg.Store.EmbeddingDimensions))
	}
	if p.Embeddings.Name != "" && cfg.Store.PostgresDSN != "" && cfg.Store.EmbeddingDimensions == 0 {
		slog.Warn("providers.embeddings is configured but store.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; profiles and applications are kept in memory only")
	}

	// Storage
	if r2 := cfg.Storage.R2; r2 != nil {
		if r2.Bucket == "" {
			errs = append(errs, errors.New("storage.r2.bucket is required"))
		}
		if r2.AccessKeyID == "" || r2.SecretAccessKey == "" {
			errs = append(errs, errors.New("storage.r2 requires access_key_id and secret_access_key"))
		}
		if r2.AccountID == "" && r2.Endpoint == "" {
			errs = append(errs, errors.New("storage.r2 requires account_id or endpoint"))
		}
	}

	// Interview
	iv := cfg.Interview
	if iv.CaptureRate != 0 && (iv.CaptureRate < 8000 || iv.CaptureRate > 192000) {
		errs = append(errs, fmt.Errorf("interview.capture_rate %d is out of range [8000, 192000]", iv.CaptureRate))
	}
	if iv.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("interview.playback_rate %d must not be negative", iv.PlaybackRate))
	}
	if iv.FrameDuration < 0 {
		errs = append(errs, fmt.Errorf("interview.frame_duration %s must not be negative", iv.FrameDuration))
	}
	if iv.IdleTimeout > 0 && iv.IdleTimeout < time.Second {
		errs = append(errs, fmt.Errorf("interview.idle_timeout %s must be at least 1s (negative disables it)", iv.IdleTimeout))
	}
	if iv.MaxDuration > 0 && iv.MaxDuration < time.Second {
		errs = append(errs, fmt.Errorf("interview.max_duration %s must be at least 1s (negative disables it)", iv.MaxDuration))
	}

	// Tasks
	t := cfg.Tasks
	if t.RoadmapTick < 0 {
		errs = append(errs, fmt.Errorf("tasks.roadmap_tick %s must not be negative", t.RoadmapTick))
	}
	if t.RoadmapStep < 0 || t.RoadmapStep > 99 {
		errs = append(errs, fmt.Errorf("tasks.roadmap_step %d is out of range [0, 99]", t.RoadmapStep))
	}
	if t.RoadmapCeiling < 0 || t.RoadmapCeiling > 99 {
		errs = append(errs, fmt.Errorf("tasks.roadmap_ceiling %d is out of range [0, 99]", t.RoadmapCeiling))
	}
	if t.SearchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("tasks.search_concurrency %d must not be negative", t.SearchConcurrency))
	}

	// Commands
	for alias, tab := range cfg.Commands.Tabs {
		if alias == "" || tab == "" {
			errs = append(errs, fmt.Errorf("commands.tabs entry %q: %q needs both an alias and a tab", alias, tab))
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}

	return errors.Join(errs...)
}

// validateFallbacks checks that every fallback names a provider and that a
// primary exists to fall back from.
func validateFallbacks(kind, primary string, entries []ProviderEntry) []error {
	var errs []error
	if len(entries) > 0 && primary == "" {
		errs = append(errs, fmt.Errorf("providers.%s_fallbacks requires providers.%s", kind, kind))
	}
	for i, e := range entries {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
