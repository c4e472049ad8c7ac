package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/arloliu/courier/errs"
)

// Registry owns the models known to a peer. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[uint64]*Model
}

// NewRegistry creates a registry holding models.
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{models: make(map[uint64]*Model, len(models))}
	for _, m := range models {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds m. Registering an identical definition again is a no-op;
// a different definition under the same id fails with ErrModelMismatch.
func (r *Registry) Register(m *Model) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", errs.ErrInvalidValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.models[m.id]; ok {
		if existing == m || reflect.DeepEqual(existing.Descriptor(), m.Descriptor()) {
			return nil
		}

		return fmt.Errorf("%w: model id %#x already registered as %q", errs.ErrModelMismatch, m.id, existing.name)
	}
	r.models[m.id] = m

	return nil
}

// Model returns the model with the given id.
func (r *Registry) Model(id uint64) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", errs.ErrUnknownModel, id)
	}

	return m, nil
}

// Has reports whether a model with the given id is registered.
func (r *Registry) Has(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.models[id]

	return ok
}

// Models returns the registered models ordered by id.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })

	return out
}
