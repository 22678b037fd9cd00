// Package registry discovers and caches the capability manifests of remote
// agents. Discovery is best-effort: endpoints that fail to answer are
// skipped and never abort startup.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"lendline/internal/a2a"
)

// CardResolver fetches an agent card from a discovery endpoint.
type CardResolver interface {
	ResolveCard(ctx context.Context, endpoint string) (a2a.AgentCard, error)
}

// Registry holds the discovered agent cards, keyed by card name.
// It is constructed once at startup and shared by reference, so repeated
// Initialize calls are safe no-ops.
type Registry struct {
	resolver  CardResolver
	endpoints []string
	logger    *slog.Logger

	mu          sync.RWMutex
	initialized bool
	cards       map[string]a2a.AgentCard
	order       []string
}

// New returns a registry for the given discovery endpoints.
func New(resolver CardResolver, endpoints []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		resolver:  resolver,
		endpoints: endpoints,
		logger:    logger,
		cards:     make(map[string]a2a.AgentCard),
	}
}

// Initialize discovers every configured endpoint once. Failures are logged
// and skipped; the registry proceeds with whatever agents answered.
func (r *Registry) Initialize(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return
	}
	for _, endpoint := range r.endpoints {
		card, err := r.resolver.ResolveCard(ctx, endpoint)
		if err != nil {
			r.logger.Warn("could not register agent endpoint", "endpoint", endpoint, "error", err)
			continue
		}
		if _, exists := r.cards[card.Name]; !exists {
			r.order = append(r.order, card.Name)
		}
		r.cards[card.Name] = card
		r.logger.Info("registered agent", "name", card.Name, "endpoint", endpoint, "skills", len(card.Skills))
	}
	r.initialized = true
}

// Initialized reports whether discovery has run.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Card returns the card registered under name.
func (r *Registry) Card(name string) (a2a.AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.cards[name]
	return card, ok
}

// Cards returns all registered cards in registration order. Iteration order
// is part of the routing contract: ties break on the first-registered agent.
func (r *Registry) Cards() []a2a.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]a2a.AgentCard, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.cards[name])
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}
