package usecases

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

func newTestManager(t *testing.T, loader *mockLoader) (*IndexManager, BuildRequest) {
	store := &memStore{}
	req := BuildRequest{
		PDFDir:       "data/dev",
		OutDir:       filepath.Join(t.TempDir(), "index"),
		StoreKind:    "mem",
		ChunkSize:    1000,
		ChunkOverlap: 100,
	}
	emb := &mockEmbedder{}
	builder := NewIndexBuilder(loader, emb, store)
	return NewIndexManager(store, builder, emb, req), req
}

func TestIndexManager_LoadMissingIndexIsNotReady(t *testing.T) {
	m, _ := newTestManager(t, &mockLoader{})

	err := m.Load(context.Background())

	assert.ErrorIs(t, err, entities.ErrIndexNotFound)
	assert.True(t, IsNotReady(err))
	assert.False(t, m.Ready())
	assert.Nil(t, m.Current())
}

func TestIndexManager_RefreshServesNewIndex(t *testing.T) {
	m, req := newTestManager(t, &mockLoader{docs: []entities.Document{twoPageDoc()}})

	report, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Equal(t, 2, report.ChunksIndexed)
	assert.True(t, m.Ready())
	require.NotNil(t, m.Snapshot())
	assert.Equal(t, uint64(1), m.Snapshot().Version)
	assert.Equal(t, req.OutDir, m.Snapshot().Dir)

	// A fresh manager over the same directory loads what was committed.
	other, _ := newTestManager(t, &mockLoader{})
	other.defaults.OutDir = req.OutDir
	require.NoError(t, other.Load(context.Background()))
	assert.Equal(t, 2, other.Current().Len())
}

func TestIndexManager_RefreshOverridesPDFDir(t *testing.T) {
	loader := &mockLoader{docs: []entities.Document{twoPageDoc()}}
	m, _ := newTestManager(t, loader)

	_, err := m.Refresh(context.Background(), "uploads")
	require.NoError(t, err)

	assert.Equal(t, []string{"uploads"}, loader.dirs)
}

func TestIndexManager_ConcurrentRefreshConflicts(t *testing.T) {
	loader := &mockLoader{
		docs:    []entities.Document{twoPageDoc()},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m, _ := newTestManager(t, loader)

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background(), "")
		done <- err
	}()
	<-loader.started
	assert.True(t, m.Building())

	_, err := m.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, entities.ErrConflict)

	close(loader.release)
	require.NoError(t, <-done)
	assert.False(t, m.Building())
	assert.True(t, m.Ready())
}

func TestIndexManager_FailedRefreshKeepsServingOldIndex(t *testing.T) {
	loader := &mockLoader{docs: []entities.Document{twoPageDoc()}}
	m, _ := newTestManager(t, loader)
	_, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)
	before := m.Current()

	loader.docs = nil
	loader.err = errors.New("disk unreadable")
	_, err = m.Refresh(context.Background(), "")

	require.Error(t, err)
	assert.Same(t, before, m.Current())
	assert.Equal(t, uint64(1), m.Snapshot().Version)
	assert.False(t, m.Building())
}

func TestIndexManager_SwapClosesPreviousIndex(t *testing.T) {
	m, _ := newTestManager(t, &mockLoader{})
	first := indexOf(t, twoPageDoc())
	second := indexOf(t, twoPageDoc())

	m.swap(first, "a")
	m.swap(second, "b")

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Same(t, ports.VectorIndex(second), m.Current())
	assert.Equal(t, uint64(2), m.Snapshot().Version)

	require.NoError(t, m.Close())
	assert.True(t, second.isClosed())
	assert.Nil(t, m.Current())
}

func TestIndexManager_AcquiredIndexOutlivesSwap(t *testing.T) {
	m, _ := newTestManager(t, &mockLoader{})
	first := indexOf(t, twoPageDoc())
	second := indexOf(t, twoPageDoc())
	m.swap(first, "a")

	held, release := m.Acquire()
	require.NotNil(t, held)
	m.swap(second, "b")

	assert.False(t, first.isClosed())
	assert.Same(t, ports.VectorIndex(second), m.Current())

	release()
	assert.True(t, first.isClosed())
	release()
	assert.False(t, second.isClosed())
}

func TestIndexManager_AcquireWithoutIndex(t *testing.T) {
	m, _ := newTestManager(t, &mockLoader{})

	idx, release := m.Acquire()

	assert.Nil(t, idx)
	assert.NotPanics(t, release)
}

func TestIndexManager_CloseWaitsForHolders(t *testing.T) {
	m, _ := newTestManager(t, &mockLoader{})
	only := indexOf(t, twoPageDoc())
	m.swap(only, "a")

	_, release := m.Acquire()
	require.NoError(t, m.Close())
	assert.False(t, only.isClosed())
	assert.Nil(t, m.Current())

	release()
	assert.True(t, only.isClosed())
}

type fixedDimEmbedder struct {
	*mockEmbedder
	dims int
}

func (f fixedDimEmbedder) Dimensions() int { return f.dims }

func TestIndexManager_RejectsDimensionMismatch(t *testing.T) {
	loader := &mockLoader{docs: []entities.Document{twoPageDoc()}}
	m, req := newTestManager(t, loader)
	_, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)

	store := &memStore{}
	emb := fixedDimEmbedder{mockEmbedder: &mockEmbedder{}, dims: 1536}
	other := NewIndexManager(store, NewIndexBuilder(loader, emb, store), emb, req)

	err = other.Load(context.Background())
	assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
	assert.False(t, other.Ready())
}

func TestIsNotReady(t *testing.T) {
	assert.True(t, IsNotReady(entities.ErrServiceUnavailable))
	assert.True(t, IsNotReady(entities.ErrIndexCorrupt))
	assert.False(t, IsNotReady(entities.ErrConflict))
	assert.False(t, IsNotReady(errors.New("other")))
}
