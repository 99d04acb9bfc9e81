package ai

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"agenthub/internal/domain/ports/adapter"
)

// Constructor builds a provider instance bound to a config.
type Constructor func(cfg adapter.Config) (adapter.Provider, error)

// Registry maps provider types to constructors. It is a plain value wired
// at process start and passed explicitly; there is no package-level state.
type Registry struct {
	mu    sync.RWMutex
	ctors map[adapter.ProviderType]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[adapter.ProviderType]Constructor)}
}

// Register associates a type tag with a constructor. The last registration
// for a tag wins.
func (r *Registry) Register(t adapter.ProviderType, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[t] = ctor
}

// Create instantiates a new provider bound to cfg.
func (r *Registry) Create(t adapter.ProviderType, cfg adapter.Config) (adapter.Provider, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[t]
	r.mu.RUnlock()
	if !ok {
		return nil, adapter.NewError(adapter.ErrInvalidRequest,
			"provider type \""+string(t)+"\" is not registered",
			map[string]any{"availableProviders": r.Types()})
	}
	return ctor(cfg)
}

func (r *Registry) IsRegistered(t adapter.ProviderType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[t]
	return ok
}

// Types returns the registered provider types in stable order.
func (r *Registry) Types() []adapter.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]adapter.ProviderType, 0, len(r.ctors))
	for t := range r.ctors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewDefaultRegistry wires the built-in providers. Called once at startup.
func NewDefaultRegistry(log *zerolog.Logger) *Registry {
	r := NewRegistry()
	r.Register(adapter.ProviderOpenAI, func(cfg adapter.Config) (adapter.Provider, error) {
		return NewOpenAIProvider(cfg, log)
	})
	r.Register(adapter.ProviderAnthropic, func(cfg adapter.Config) (adapter.Provider, error) {
		return NewAnthropicProvider(cfg, log)
	})
	r.Register(adapter.ProviderGoogle, func(cfg adapter.Config) (adapter.Provider, error) {
		return NewGeminiProvider(cfg, log)
	})
	return r
}
