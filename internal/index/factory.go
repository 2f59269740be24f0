// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"sort"
	"sync"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	DefaultBackend    = "memory"
	DefaultCollection = "wikipedia_content"
	DefaultTopK       = 5
)

// Config describes the collection to open. Metric and Dimension are fixed for
// the lifetime of a persistent collection.
type Config struct {
	Backend    string
	Collection string
	// Path is the database file for persistent backends.
	Path      string
	Metric    string
	Dimension int
}

// Factory opens a backend for cfg.
type Factory func(cfg Config) (Backend, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend makes a backend available by name. Backend packages call
// this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open validates cfg, opens the named backend and wraps it in a Collection.
func Open(cfg Config) (*Collection, error) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricL2
	}
	if cfg.Metric != MetricL2 {
		return nil, wikierr.New(wikierr.CodeIndexBackendUnsupported, "unsupported distance metric",
			wikierr.Field("metric", cfg.Metric))
	}
	if cfg.Dimension <= 0 {
		return nil, wikierr.Errorf(wikierr.CodeConfigValidateInvalidValue,
			"index dimension must be positive, got %d", cfg.Dimension)
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, wikierr.New(wikierr.CodeIndexBackendUnsupported, "unsupported index backend",
			wikierr.Field("backend", cfg.Backend))
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return NewCollection(cfg.Collection, backend), nil
}
