package source

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/model"
)

// Registry maps source ids to sites and builds strategies for them.
type Registry struct {
	mu    sync.RWMutex
	sites map[model.Source]Site
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sites: make(map[model.Source]Site)}
}

// Register adds or replaces a site under its profile id.
func (r *Registry) Register(site Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[site.Profile().ID] = site
}

// Has reports whether id is registered.
func (r *Registry) Has(id model.Source) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sites[id]
	return ok
}

// IDs lists registered ids in sorted order.
func (r *Registry) IDs() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.Source, 0, len(r.sites))
	for id := range r.sites {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Strategy builds a strategy for id.
func (r *Registry) Strategy(id model.Source, opts Options) (*Strategy, error) {
	r.mu.RLock()
	site, ok := r.sites[id]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", id)
	}
	return NewStrategy(site, opts), nil
}

// Strategies builds strategies for ids in the given order, failing on the
// first unknown id. opts is looked up per id; missing entries use zero
// Options.
func (r *Registry) Strategies(ids []model.Source, opts map[model.Source]Options) ([]*Strategy, error) {
	out := make([]*Strategy, 0, len(ids))
	for _, id := range ids {
		s, err := r.Strategy(id, opts[id])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
