// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
	"github.com/sigil-dev/wikiqa/pkg/health"
)

// Registry manages provider registration, lookup, and routing with
// health-aware failover. It implements the Router interface.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string   // "provider/model" format
	failover   []string // ordered list of "provider/model" refs
}

// Compile-time check that Registry implements Router.
var _ Router = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, wikierr.New(
			wikierr.CodeProviderNotFound,
			"provider not found: "+name,
			wikierr.FieldProvider(name),
		)
	}
	return p, nil
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health snapshots every registered provider, sorted by name. Providers that
// do not report metrics are checked with Available.
func (r *Registry) Health(ctx context.Context) []health.Metrics {
	names := r.Names()
	out := make([]health.Metrics, 0, len(names))
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		var m health.Metrics
		if mr, ok := p.(MetricsReporter); ok {
			m = mr.HealthMetrics()
		} else {
			m.Available = p.Available(ctx)
		}
		m.Provider = name
		out = append(out, m)
	}
	return out
}

// SetDefault sets the "provider/model" reference used when a request names
// no model. Returns an error if the provider portion of the ref is not
// registered.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRegistered("SetDefault", ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// DefaultRef returns the configured default reference.
func (r *Registry) DefaultRef() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRef
}

// SetFailover sets the ordered failover chain of "provider/model" refs.
// Returns an error if any provider portion of the refs is not registered.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRegistered("SetFailover", ref); err != nil {
			return err
		}
	}
	r.failover = append([]string(nil), chain...)
	return nil
}

// Route selects a provider for modelRef. An empty ref (or "default") uses the
// default. When the chosen provider reports itself unavailable, the failover
// chain is walked in order.
func (r *Registry) Route(ctx context.Context, modelRef string) (Provider, string, error) {
	return r.RouteExcluding(ctx, modelRef, nil)
}

// RouteExcluding is like Route but skips the named providers.
func (r *Registry) RouteExcluding(ctx context.Context, modelRef string, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.resolveRef(modelRef)
	if err != nil {
		return nil, "", err
	}
	if ref == "" {
		return nil, "", wikierr.New(
			wikierr.CodeProviderNoDefault,
			"no default provider configured",
		)
	}

	provName, _ := ParseRef(ref)
	if !slices.Contains(exclude, provName) {
		p, model, err := r.tryRef(ctx, ref)
		if err == nil {
			return p, model, nil
		}
	}

	for _, fallback := range r.failover {
		fbProv, _ := ParseRef(fallback)
		if slices.Contains(exclude, fbProv) {
			continue
		}
		p, model, err := r.tryRef(ctx, fallback)
		if err == nil {
			return p, model, nil
		}
	}

	return nil, "", wikierr.New(
		wikierr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found",
	)
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return wikierr.Join(errs...)
	}
	return nil
}

// Caller must hold r.mu.
func (r *Registry) checkRegistered(op, ref string) error {
	provName, _ := ParseRef(ref)
	if _, ok := r.providers[provName]; !ok {
		return wikierr.New(
			wikierr.CodeProviderNotFound,
			op+": provider not registered: "+provName,
			wikierr.FieldProvider(provName),
		)
	}
	return nil
}

// resolveRef determines which "provider/model" ref to use.
// Caller must hold r.mu (at least RLock).
func (r *Registry) resolveRef(modelRef string) (string, error) {
	if modelRef != "" && modelRef != "default" {
		if !strings.Contains(modelRef, "/") {
			return "", wikierr.Errorf(
				wikierr.CodeProviderInvalidModelRef,
				"model name %q must use provider/model format", modelRef,
			)
		}
		return modelRef, nil
	}
	return r.defaultRef, nil
}

// tryRef looks up the ref's provider and checks availability.
// Caller must hold r.mu (at least RLock).
func (r *Registry) tryRef(ctx context.Context, ref string) (Provider, string, error) {
	providerName, model := ParseRef(ref)

	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", wikierr.New(
			wikierr.CodeProviderNotFound,
			"provider not found: "+providerName,
			wikierr.FieldProvider(providerName),
		)
	}

	if !p.Available(ctx) {
		return nil, "", wikierr.New(
			wikierr.CodeProviderUpstreamFailure,
			"provider unavailable: "+providerName,
			wikierr.FieldProvider(providerName),
		)
	}

	return p, model, nil
}

// ParseRef splits a "provider/model" reference on the first "/".
func ParseRef(ref string) (providerName, model string) {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}
