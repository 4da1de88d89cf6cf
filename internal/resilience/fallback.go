package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// Kind labels the provider boundary ("llm", "embeddings", "s2s") in logs
	// and metrics.
	Kind string

	// CircuitBreaker is the template for every entry's breaker. Name is set
	// per entry.
	CircuitBreaker CircuitBreakerConfig

	// Metrics, if set, counts failovers as provider errors of kind
	// "failover".
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of one provider
// type. Calls go to the first entry whose breaker admits them; a failure moves
// on to the next entry in registration order.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
	logger  *slog.Logger
}

// NewFallbackGroup returns a group with primary as its first entry. Add
// fallbacks with [FallbackGroup.AddFallback] before first use.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fg := &FallbackGroup[T]{cfg: cfg, logger: cfg.Logger.With("kind", cfg.Kind)}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. It is not safe to call concurrently with
// Execute.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = fg.cfg.Kind + "/" + name
	if cbCfg.Logger == nil {
		cbCfg.Logger = fg.cfg.Logger
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries including the primary.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Execute tries fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result. A caller cancellation stops the walk immediately and is
// returned unwrapped. Otherwise the last error is wrapped in [ErrAllFailed].
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			if i > 0 {
				fg.logger.Info("served by fallback provider", "provider", entry.name)
			}
			return result, nil
		}
		if isCallerCancel(err) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.logger.Debug("skipping provider with open circuit", "provider", entry.name)
			continue
		}
		fg.logger.Warn("provider failed", "provider", entry.name, "err", err)
		if m := fg.cfg.Metrics; m != nil && i < len(fg.entries)-1 {
			m.RecordProviderError(context.Background(), fg.cfg.Kind, "failover")
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
