// Package vectordb provides vector index adapters.
// Clean Architecture: Adapter implementing ports.VectorIndex, ports.IndexBackend and ports.IndexStore.
// Every backend does exact search: vectors are normalized at build time and
// scored by inner product, so scores are cosine similarities.
package vectordb

import (
	"context"
	"fmt"
	"sort"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// Backend kinds.
const (
	KindFlat   = "flat"
	KindSQLite = "sqlite"
	KindBolt   = "bolt"
)

// Registry implements ports.IndexStore over a set of backends.
type Registry struct {
	backends map[string]ports.IndexBackend
}

// NewRegistry registers backends by their Kind.
func NewRegistry(backends ...ports.IndexBackend) *Registry {
	r := &Registry{backends: make(map[string]ports.IndexBackend, len(backends))}
	for _, b := range backends {
		r.backends[b.Kind()] = b
	}
	return r
}

// DefaultRegistry registers the flat, sqlite and bolt backends.
func DefaultRegistry() *Registry {
	return NewRegistry(NewFlatBackend(), NewSQLiteBackend(), NewBoltBackend())
}

// Backend returns the backend registered for kind.
func (r *Registry) Backend(kind string) (ports.IndexBackend, error) {
	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("unknown index store %q (available: %v)", kind, r.Kinds())
	}
	return b, nil
}

// Kinds lists registered backend kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open loads the index saved in dir with the backend named in its manifest.
func (r *Registry) Open(ctx context.Context, dir string) (ports.VectorIndex, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	b, ok := r.backends[m.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: index kind %q is not supported", entities.ErrIndexCorrupt, m.Kind)
	}
	return b.Load(ctx, dir)
}
