package rates

import (
	"context"
	"fmt"

	"github.com/bootarou/xympay-sub000/internal/domain"
)

// Provider is the rate-lookup capability consumed at confirmation time.
// Implementations are registered by id; which one serves a deployment is
// configuration data, not code.
type Provider interface {
	ID() string
	SupportedCurrencies() []string
	GetRate(ctx context.Context, crypto, fiat string) (domain.RateQuote, error)
}

// Registry holds the available rate providers keyed by id.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		registry.providers[provider.ID()] = provider
	}
	return registry
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, error) {
	provider, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("no rate provider registered with id %q", id)
	}
	return provider, nil
}
