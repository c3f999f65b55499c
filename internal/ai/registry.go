package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"lingochat/internal/settings"
)

// ProviderFactory builds a provider for one chat turn from the current
// backend settings (per-user key, selected local model).
type ProviderFactory func(ctx context.Context, s settings.ModelSettings) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, s settings.ModelSettings) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai backend: %s", name)
	}
	return f(ctx, s)
}
