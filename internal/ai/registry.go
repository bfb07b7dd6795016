package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/callscore/pkg/models"
	"golang.org/x/sync/singleflight"
)

// Loader constructs a classifier. It is invoked at most once per model id.
type Loader func(ctx context.Context) (models.Classifier, error)

// Accessor hands out a loaded classifier, or false when the component must
// use its rule-based fallback.
type Accessor func(ctx context.Context) (models.Classifier, bool)

type entry struct {
	classifier models.Classifier
	err        error
}

// Registry lazily loads classifiers keyed by model id and remembers the
// outcome for the lifetime of the process. A failed load is never retried.
// The zero value is ready to use.
type Registry struct {
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Get returns the classifier for id, calling load on first use. Concurrent
// first calls share a single load.
func (r *Registry) Get(ctx context.Context, id string, load Loader) (models.Classifier, error) {
	if e, ok := r.lookup(id); ok {
		return e.classifier, e.err
	}

	v, _, _ := r.group.Do(id, func() (any, error) {
		if e, ok := r.lookup(id); ok {
			return e, nil
		}
		e := r.load(context.WithoutCancel(ctx), id, load)
		r.mu.Lock()
		if r.entries == nil {
			r.entries = make(map[string]entry)
		}
		r.entries[id] = e
		r.mu.Unlock()
		return e, nil
	})
	e := v.(entry)
	return e.classifier, e.err
}

// Accessor binds id and load into an Accessor. Load failures are logged once.
func (r *Registry) Accessor(id string, load Loader) Accessor {
	return func(ctx context.Context) (models.Classifier, bool) {
		c, err := r.Get(ctx, id, load)
		return c, err == nil
	}
}

// Loaded reports whether id has been loaded successfully.
func (r *Registry) Loaded(id string) bool {
	e, ok := r.lookup(id)
	return ok && e.err == nil
}

func (r *Registry) lookup(id string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) load(ctx context.Context, id string, load Loader) (e entry) {
	defer func() {
		if p := recover(); p != nil {
			e = entry{err: fmt.Errorf("%w: loading %s: panic: %v", ErrProviderUnavailable, id, p)}
			slog.Warn("classifier load panicked, using rule-based fallback", "model", id, "error", p)
		}
	}()

	c, err := load(ctx)
	switch {
	case err != nil:
		slog.Warn("classifier load failed, using rule-based fallback", "model", id, "error", err)
		return entry{err: fmt.Errorf("%w: loading %s: %v", ErrProviderUnavailable, id, err)}
	case c == nil:
		slog.Warn("classifier loader returned nothing, using rule-based fallback", "model", id)
		return entry{err: fmt.Errorf("%w: loading %s: nil classifier", ErrProviderUnavailable, id)}
	}
	slog.Info("classifier loaded", "model", id, "provider", c.Name())
	return entry{classifier: c}
}
