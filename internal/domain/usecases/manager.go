package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// IndexSnapshot is one loaded, immutable index generation.
type IndexSnapshot struct {
	Index    ports.VectorIndex
	Version  uint64
	Dir      string
	LoadedAt time.Time

	// refs counts the manager's own hold plus every Acquire not yet
	// released. The index is closed when it drops to zero.
	refs atomic.Int64
}

// retain takes a reference unless the snapshot is already closed.
func (s *IndexSnapshot) retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and closes the index after the last one.
func (s *IndexSnapshot) release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	if err := s.Index.Close(); err != nil {
		return fmt.Errorf("closing index v%d: %w", s.Version, err)
	}
	return nil
}

// IndexManager owns the serving index. Queries read the current snapshot
// through a single atomic pointer; rebuilds construct a new index off to the
// side and swap it in. At most one rebuild runs at a time.
type IndexManager struct {
	store    ports.IndexStore
	builder  *IndexBuilder
	embedder ports.EmbeddingService
	defaults BuildRequest

	current  atomic.Pointer[IndexSnapshot]
	building atomic.Bool
	version  atomic.Uint64
}

// NewIndexManager creates a manager that builds with defaults unless a
// refresh overrides the PDF directory.
func NewIndexManager(store ports.IndexStore, builder *IndexBuilder, embedder ports.EmbeddingService, defaults BuildRequest) *IndexManager {
	return &IndexManager{
		store:    store,
		builder:  builder,
		embedder: embedder,
		defaults: defaults,
	}
}

// Acquire returns the serving index pinned open until release is called.
// A later swap does not close it while it is held. idx is nil when no index
// is loaded; release is always safe to call.
func (m *IndexManager) Acquire() (idx ports.VectorIndex, release func()) {
	for {
		s := m.current.Load()
		if s == nil {
			return nil, func() {}
		}
		if !s.retain() {
			// Swapped out and closed between Load and retain.
			continue
		}
		var once sync.Once
		return s.Index, func() {
			once.Do(func() {
				if err := s.release(); err != nil {
					logger.Warn("%v", err)
				}
			})
		}
	}
}

// Current returns the serving index, or nil when none is loaded. The result
// is not pinned; searches go through Acquire.
func (m *IndexManager) Current() ports.VectorIndex {
	if s := m.current.Load(); s != nil {
		return s.Index
	}
	return nil
}

// Snapshot returns the serving snapshot, or nil.
func (m *IndexManager) Snapshot() *IndexSnapshot {
	return m.current.Load()
}

// Ready reports whether a non-empty index is servable.
func (m *IndexManager) Ready() bool {
	idx := m.Current()
	return idx != nil && idx.Len() > 0
}

// Building reports whether a rebuild is running.
func (m *IndexManager) Building() bool {
	return m.building.Load()
}

// Load opens the index in the configured output directory and serves it.
// Failures leave the manager not ready; they are not fatal to the process.
func (m *IndexManager) Load(ctx context.Context) error {
	idx, err := m.open(ctx, m.defaults.OutDir)
	if err != nil {
		return err
	}
	m.swap(idx, m.defaults.OutDir)
	return nil
}

// Refresh rebuilds the index from pdfDir (or the default directory) and
// swaps it in. A refresh already in progress yields entities.ErrConflict.
// The previous index keeps serving until the swap and after any failure.
func (m *IndexManager) Refresh(ctx context.Context, pdfDir string) (*entities.BuildReport, error) {
	if !m.building.CompareAndSwap(false, true) {
		return nil, entities.ErrConflict
	}
	defer m.building.Store(false)

	req := m.defaults
	if pdfDir != "" {
		req.PDFDir = pdfDir
	}
	logger.Info("Rebuilding index from %s", req.PDFDir)

	report, err := m.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	idx, err := m.open(ctx, req.OutDir)
	if err != nil {
		return nil, fmt.Errorf("opening rebuilt index: %w", err)
	}
	m.swap(idx, req.OutDir)
	return report, nil
}

// Close releases the serving index.
func (m *IndexManager) Close() error {
	if s := m.current.Swap(nil); s != nil {
		return s.release()
	}
	return nil
}

func (m *IndexManager) open(ctx context.Context, dir string) (ports.VectorIndex, error) {
	idx, err := m.store.Open(ctx, dir)
	if err != nil {
		return nil, err
	}
	if m.embedder != nil {
		if want := m.embedder.Dimensions(); want > 0 && idx.Dimensions() != want {
			idx.Close()
			return nil, fmt.Errorf("%w: index has %d dimensions, embedding model %s produces %d",
				entities.ErrIndexCorrupt, idx.Dimensions(), m.embedder.ModelName(), want)
		}
	}
	return idx, nil
}

func (m *IndexManager) swap(idx ports.VectorIndex, dir string) {
	snap := &IndexSnapshot{
		Index:    idx,
		Version:  m.version.Add(1),
		Dir:      dir,
		LoadedAt: time.Now(),
	}
	snap.refs.Store(1)
	prev := m.current.Swap(snap)
	logger.Info("Serving %s index v%d (%d chunks) from %s", idx.Kind(), snap.Version, idx.Len(), dir)

	// prev stays open until its last Acquire is released.
	if prev != nil {
		if err := prev.release(); err != nil {
			logger.Warn("%v", err)
		}
	}
}

// IsNotReady reports whether err means "no servable index" rather than a fault.
func IsNotReady(err error) bool {
	return errors.Is(err, entities.ErrServiceUnavailable) ||
		errors.Is(err, entities.ErrIndexNotFound) ||
		errors.Is(err, entities.ErrIndexCorrupt)
}
