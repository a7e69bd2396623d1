package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/seva/internal/payment/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for provider := range r.factories {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	factory, err := r.factory(provider)
	if err != nil {
		return nil, err
	}
	return factory.NewAdapter(cfg)
}

func (r *Registry) NewClient(provider string, cfg domain.AdapterConfig) (domain.GatewayClient, error) {
	factory, err := r.factory(provider)
	if err != nil {
		return nil, err
	}
	return factory.NewClient(cfg)
}

func (r *Registry) factory(provider string) (domain.AdapterFactory, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
