package llm

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// NewProvider creates a provider for the given family using the supplied
// configuration. Missing config fields fall back to DefaultConfig values.
func NewProvider(kind Kind, cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig(string(kind))
	}
	if cfg.Endpoint == "" || cfg.Model == "" {
		def := DefaultConfig(string(kind))
		if def != nil {
			if cfg.Endpoint == "" {
				cfg.Endpoint = def.Endpoint
			}
			if cfg.Model == "" {
				cfg.Model = def.Model
			}
		}
	}

	switch kind {
	case KindOpenAI:
		return NewOpenAIProvider(cfg), nil
	case KindOpenRouter:
		return NewOpenRouterProvider(cfg), nil
	case KindGemini:
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", kind)
	}
}

// Router holds one provider per family and selects among them by model name.
type Router struct {
	providers map[Kind]Provider
}

// NewRouter builds a router from per-family configs. Families without an API
// key are still registered; Available reports their readiness.
func NewRouter(configs map[Kind]*ProviderConfig) (*Router, error) {
	r := &Router{providers: make(map[Kind]Provider)}
	for _, kind := range []Kind{KindOpenAI, KindOpenRouter, KindGemini} {
		p, err := NewProvider(kind, configs[kind])
		if err != nil {
			return nil, err
		}
		r.providers[kind] = p
		log.Debug().
			Str("provider", string(kind)).
			Bool("available", p.Available()).
			Msg("provider registered")
	}
	return r, nil
}

// ForModel returns the provider whose family serves the given model name.
func (r *Router) ForModel(model string) (Provider, error) {
	kind := KindForModel(model)
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", kind)
	}
	return p, nil
}

// ForKind returns the provider for an explicit family.
func (r *Router) ForKind(kind Kind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", kind)
	}
	return p, nil
}
