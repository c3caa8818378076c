package engine

import (
	"context"
	"log/slog"
)

// Registry holds the initialized engines in registration order.
type Registry struct {
	engines map[string]Engine
	order   []string
	log     *slog.Logger
}

// NewRegistry creates a registry over the given engines. Call Init before
// use; only engines that pass Init are kept.
func NewRegistry(log *slog.Logger, engines ...Engine) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{engines: make(map[string]Engine), log: log}
	for _, e := range engines {
		if _, dup := r.engines[e.Name()]; dup {
			continue
		}
		r.engines[e.Name()] = e
		r.order = append(r.order, e.Name())
	}
	return r
}

// Init probes every registered engine and drops the ones that fail.
func (r *Registry) Init(ctx context.Context) {
	kept := r.order[:0]
	for _, name := range r.order {
		if r.engines[name].Init(ctx) {
			r.log.Info("engine available", "engine", name)
			kept = append(kept, name)
			continue
		}
		r.log.Warn("engine unavailable", "engine", name)
		delete(r.engines, name)
	}
	r.order = kept
	if len(r.order) == 0 {
		r.log.Error("no OCR engine available")
	}
}

// Get returns the named engine, or nil.
func (r *Registry) Get(name string) Engine {
	return r.engines[name]
}

// Has reports whether the named engine is available.
func (r *Registry) Has(name string) bool {
	_, ok := r.engines[name]
	return ok
}

// Names lists available engines in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Infos describes every available engine.
func (r *Registry) Infos() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.engines[name].Info())
	}
	return out
}
