// Command autojob is the entry point of the autojob career assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/AnsuryX/Autojob-Mvp/internal/app"
	"github.com/AnsuryX/Autojob-Mvp/internal/config"
	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch/serpapi"
	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
	"github.com/AnsuryX/Autojob-Mvp/internal/resilience"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
	oaembed "github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings/openai"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm/anyllm"
	geminillm "github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm/gemini"
	oaillm "github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm/openai"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
	geminilive "github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s/gemini"
	oais2s "github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config is expanded")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "autojob: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "autojob: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "autojob: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("autojob starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(telemetry.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(ctx, cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		application.ApplyConfig(d)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, providerName := range anyllm.Backends() {
		reg.RegisterLLM(providerName, func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
			// direct: true selects the native OpenAI client with structured
			// output instead of the any-llm adapter.
			if providerName == "openai" && optBool(entry.Options, "direct") {
				var opts []oaillm.Option
				if entry.BaseURL != "" {
					opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
				}
				if org := optString(entry.Options, "organization"); org != "" {
					opts = append(opts, oaillm.WithOrganization(org))
				}
				if d := optDuration(entry.Options, "timeout"); d > 0 {
					opts = append(opts, oaillm.WithTimeout(d))
				}
				return oaillm.New(entry.APIKey, entry.Model, opts...)
			}

			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("gemini-genai", func(ctx context.Context, entry config.ProviderEntry) (llm.Provider, error) {
		var opts []geminillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, geminillm.WithBaseURL(entry.BaseURL))
		}
		return geminillm.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────
	newOpenAIEmbeddings := func(entry config.ProviderEntry, baseURL string) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if baseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(baseURL))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		if n := optInt(entry.Options, "batch_size"); n > 0 {
			opts = append(opts, oaembed.WithBatchSize(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	}
	reg.RegisterEmbeddings("openai", func(_ context.Context, entry config.ProviderEntry) (embeddings.Provider, error) {
		return newOpenAIEmbeddings(entry, entry.BaseURL)
	})
	// Ollama serves an OpenAI-compatible /v1/embeddings endpoint.
	reg.RegisterEmbeddings("ollama", func(_ context.Context, entry config.ProviderEntry) (embeddings.Provider, error) {
		base := entry.BaseURL
		if base == "" {
			base = "http://localhost:11434/v1"
		}
		if entry.APIKey == "" {
			entry.APIKey = "ollama"
		}
		return newOpenAIEmbeddings(entry, base)
	})

	// ── S2S ───────────────────────────────────────────────────────────────────
	reg.RegisterS2S("openai-realtime", func(_ context.Context, entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []oais2s.Option
		if entry.Model != "" {
			opts = append(opts, oais2s.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oais2s.WithBaseURL(entry.BaseURL))
		}
		if m := optString(entry.Options, "transcription_model"); m != "" {
			opts = append(opts, oais2s.WithTranscriptionModel(m))
		}
		return oais2s.New(entry.APIKey, opts...), nil
	})

	reg.RegisterS2S("gemini-live", func(_ context.Context, entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		if _, ok := entry.Options["keepalive"]; ok {
			opts = append(opts, geminilive.WithKeepalive(optDuration(entry.Options, "keepalive")))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	// ── Job search ────────────────────────────────────────────────────────────
	reg.RegisterJobSearch("serpapi", func(_ context.Context, entry config.ProviderEntry) (jobsearch.Provider, error) {
		var opts []serpapi.Option
		if entry.BaseURL != "" {
			opts = append(opts, serpapi.WithBaseURL(entry.BaseURL))
		}
		return serpapi.New(entry.APIKey, opts...)
	})

	for kind, names := range reg.Registered() {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}
}

// buildProviders instantiates all providers named in cfg and wraps every kind
// that has fallbacks in a circuit-broken failover group.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	p := cfg.Providers
	fallbackCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			Kind: kind,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cfg.Resilience.MaxFailures,
				ResetTimeout: cfg.Resilience.ResetTimeout,
			},
			Metrics: metrics,
		}
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	primary, err := create(ctx, "llm", p.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	ps.LLM = primary
	if primary != nil && len(p.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(primary, p.LLM.Name, fallbackCfg("llm"))
		for _, e := range p.LLMFallbacks {
			alt, err := create(ctx, "llm", e, reg.CreateLLM)
			if err != nil {
				return nil, err
			}
			if alt != nil {
				fb.AddFallback(e.Name, alt)
			}
		}
		ps.LLM = fb
	}

	// ── S2S ───────────────────────────────────────────────────────────────────
	voice, err := create(ctx, "s2s", p.S2S, reg.CreateS2S)
	if err != nil {
		return nil, err
	}
	ps.S2S = voice
	if voice != nil && len(p.S2SFallbacks) > 0 {
		fb := resilience.NewS2SFallback(voice, p.S2S.Name, fallbackCfg("s2s"))
		for _, e := range p.S2SFallbacks {
			alt, err := create(ctx, "s2s", e, reg.CreateS2S)
			if err != nil {
				return nil, err
			}
			if alt != nil {
				fb.AddFallback(e.Name, alt)
			}
		}
		ps.S2S = fb
	}

	// ── Embeddings ────────────────────────────────────────────────────────────
	emb, err := create(ctx, "embeddings", p.Embeddings, reg.CreateEmbeddings)
	if err != nil {
		return nil, err
	}
	ps.Embeddings = emb
	if emb != nil && len(p.EmbeddingsFallbacks) > 0 {
		fb := resilience.NewEmbeddingsFallback(emb, p.Embeddings.Name, fallbackCfg("embeddings"))
		for _, e := range p.EmbeddingsFallbacks {
			alt, err := create(ctx, "embeddings", e, reg.CreateEmbeddings)
			if err != nil {
				return nil, err
			}
			if alt == nil {
				continue
			}
			if err := fb.AddFallback(e.Name, alt); err != nil {
				return nil, fmt.Errorf("embeddings fallback %q: %w", e.Name, err)
			}
		}
		ps.Embeddings = fb
	}

	// ── Job search ────────────────────────────────────────────────────────────
	jobs, err := create(ctx, "jobsearch", p.JobSearch, reg.CreateJobSearch)
	if err != nil {
		return nil, err
	}
	ps.Jobs = jobs

	return ps, nil
}

// create builds one provider. An empty name yields the zero value; an
// unregistered name is logged and skipped.
func create[T any](ctx context.Context, kind string, entry config.ProviderEntry, fn func(context.Context, config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	v, err := fn(ctx, entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return v, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	p := cfg.Providers
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         autojob: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", p.LLM.Name, p.LLM.Model)
	printProvider("S2S", p.S2S.Name, p.S2S.Model)
	printProvider("Embeddings", p.Embeddings.Name, p.Embeddings.Model)
	printProvider("Job search", p.JobSearch.Name, "")
	printRow("Fallbacks", fmt.Sprintf("%d", len(p.LLMFallbacks)+len(p.S2SFallbacks)+len(p.EmbeddingsFallbacks)))
	printRow("Store", enabled(cfg.Store.PostgresDSN != "", "postgres", "memory"))
	printRow("Archive", enabled(cfg.Storage.R2 != nil, "r2", "(disabled)"))
	printRow("Broker", enabled(cfg.Broker.AMQPURL != "", "amqp", "(disabled)"))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func enabled(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}

// optInt accepts YAML integers and floats.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a Go duration string such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
