package server

import (
	"fmt"
	"sort"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/config"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
	"github.com/R2-Decide/esci-evaluator/internal/qdrant"
)

// Registry holds the configured backend adapters by name. Backends
// without credentials in the configuration are simply not registered.
type Registry struct {
	adapters map[string]backend.Adapter
}

// NewRegistry builds the adapter registry from the backend configuration.
// The qdrant client may be nil when the r2decide adapter is not
// configured.
func NewRegistry(cfg config.BackendsConfig, qc *qdrant.Client) (*Registry, error) {
	adapters := make(map[string]backend.Adapter)

	if cfg.ResultsFile != "" {
		static, err := backend.LoadResultsFile("static", cfg.ResultsFile)
		if err != nil {
			return nil, fmt.Errorf("loading results file: %w", err)
		}
		adapters[static.Name()] = static
	}

	if cfg.Algolia.AppID != "" {
		algolia, err := backend.NewAlgolia(cfg.Algolia)
		if err != nil {
			return nil, err
		}
		adapters[algolia.Name()] = algolia
	}

	if cfg.Doofinder.HashID != "" {
		doofinder, err := backend.NewDoofinder(cfg.Doofinder)
		if err != nil {
			return nil, err
		}
		adapters[doofinder.Name()] = doofinder
	}

	if cfg.Shopify.ShopURL != "" {
		shopify, err := backend.NewShopify(cfg.Shopify)
		if err != nil {
			return nil, err
		}
		adapters[shopify.Name()] = shopify
	}

	if cfg.R2Decide.Collection != "" {
		if qc == nil {
			return nil, errors.ConfigurationError("r2decide adapter requires a qdrant client")
		}
		r2, err := backend.NewQdrant(cfg.R2Decide, qc)
		if err != nil {
			return nil, err
		}
		adapters[r2.Name()] = r2
	}

	return &Registry{adapters: adapters}, nil
}

// Register adds an adapter, replacing any previous one with the same
// name.
func (r *Registry) Register(a backend.Adapter) {
	r.adapters[a.Name()] = a
}

// Resolve returns the adapter with the given name.
func (r *Registry) Resolve(name string) (backend.Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("backend %q", name))
	}
	return a, nil
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
