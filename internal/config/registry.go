package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs a provider of type T from its config entry.
type Factory[T any] func(ctx context.Context, entry ProviderEntry) (T, error)

// factories is one provider kind's name-to-constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(ctx context.Context, entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(ctx, entry)
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        factories[llm.Provider]
	s2s        factories[s2s.Provider]
	embeddings factories[embeddings.Provider]
	jobsearch  factories[jobsearch.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactories[llm.Provider]("llm"),
		s2s:        newFactories[s2s.Provider]("s2s"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
		jobsearch:  newFactories[jobsearch.Provider]("jobsearch"),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterS2S registers a speech-to-speech provider factory under name.
func (r *Registry) RegisterS2S(name string, factory Factory[s2s.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s2s.m[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.m[name] = factory
}

// RegisterJobSearch registers a job board provider factory under name.
func (r *Registry) RegisterJobSearch(name string, factory Factory[jobsearch.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobsearch.m[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(ctx context.Context, entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(ctx, entry)
}

// CreateS2S instantiates a speech-to-speech provider.
func (r *Registry) CreateS2S(ctx context.Context, entry ProviderEntry) (s2s.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s2s.create(ctx, entry)
}

// CreateEmbeddings instantiates an embeddings provider.
func (r *Registry) CreateEmbeddings(ctx context.Context, entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings.create(ctx, entry)
}

// CreateJobSearch instantiates a job board provider.
func (r *Registry) CreateJobSearch(ctx context.Context, entry ProviderEntry) (jobsearch.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobsearch.create(ctx, entry)
}

// Registered returns the sorted provider names registered per kind.
func (r *Registry) Registered() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"llm":        r.llm.names(),
		"s2s":        r.s2s.names(),
		"embeddings": r.embeddings.names(),
		"jobsearch":  r.jobsearch.names(),
	}
}
