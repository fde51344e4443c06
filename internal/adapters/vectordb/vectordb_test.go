package vectordb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

func testEntries() []entities.IndexEntry {
	return []entities.IndexEntry{
		{Chunk: entities.Chunk{ID: "c1", Text: "hello", SourceFile: "a.pdf", PageNumber: 1, Index: 0}, Vector: []float32{1, 0, 0}},
		{Chunk: entities.Chunk{ID: "c2", Text: "world", SourceFile: "a.pdf", PageNumber: 2, Index: 1}, Vector: []float32{0, 2, 0}},
		{Chunk: entities.Chunk{ID: "c3", Text: "again", SourceFile: "b.pdf", Index: 0}, Vector: []float32{0, 0, 3}},
		{Chunk: entities.Chunk{ID: "c4", Text: "tie", SourceFile: "b.pdf", Index: 1}, Vector: []float32{5, 0, 0}},
	}
}

var meta = ports.IndexMeta{EmbeddingModel: "test-model", ChunkSize: 1000, ChunkOverlap: 100}

func backends(t *testing.T) []ports.IndexBackend {
	return []ports.IndexBackend{
		NewFlatBackend(),
		NewSQLiteBackend(),
		&BoltBackend{ScratchDir: t.TempDir()},
	}
}

func ids(hits []entities.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.ID
	}
	return out
}

func TestBackends_SearchRanksAndBreaksTiesByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			idx, err := b.Build(ctx, testEntries())
			require.NoError(t, err)
			defer idx.Close()

			assert.Equal(t, 4, idx.Len())
			assert.Equal(t, 3, idx.Dimensions())
			assert.Equal(t, b.Kind(), idx.Kind())

			hits, err := idx.Search(ctx, []float32{2, 0, 0}, 3)
			require.NoError(t, err)
			// c1 and c4 normalize to the same vector; c1 was inserted first.
			assert.Equal(t, []string{"c1", "c4", "c2"}, ids(hits))
			assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
			assert.InDelta(t, 1.0, hits[1].Score, 1e-6)
			assert.Equal(t, "a.pdf", hits[0].Chunk.SourceFile)
			assert.Equal(t, 1, hits[0].Chunk.PageNumber)
			assert.Equal(t, "hello", hits[0].Chunk.Text)
		})
	}
}

func TestBackends_KBounds(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			idx, err := b.Build(ctx, testEntries())
			require.NoError(t, err)
			defer idx.Close()

			hits, err := idx.Search(ctx, []float32{0, 1, 0}, 50)
			require.NoError(t, err)
			assert.Len(t, hits, 4)
			assert.Equal(t, "c2", hits[0].Chunk.ID)

			hits, err = idx.Search(ctx, []float32{0, 1, 0}, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestBackends_QueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			idx, err := b.Build(ctx, testEntries())
			require.NoError(t, err)
			defer idx.Close()

			_, err = idx.Search(ctx, []float32{1, 0}, 2)
			assert.ErrorIs(t, err, entities.ErrValidation)
		})
	}
}

func TestBackends_RejectMixedDimensions(t *testing.T) {
	entries := []entities.IndexEntry{
		{Chunk: entities.Chunk{ID: "a"}, Vector: []float32{1, 0}},
		{Chunk: entities.Chunk{ID: "b"}, Vector: []float32{1, 0, 0}},
	}
	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			_, err := b.Build(context.Background(), entries)
			assert.ErrorIs(t, err, entities.ErrValidation)
		})
	}
}

func TestBackends_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	registry := DefaultRegistry()
	query := []float32{0.3, 0.9, 0.1}

	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			idx, err := b.Build(ctx, testEntries())
			require.NoError(t, err)
			want, err := idx.Search(ctx, query, 4)
			require.NoError(t, err)

			dir := t.TempDir()
			require.NoError(t, idx.Save(ctx, dir, meta))
			require.NoError(t, idx.Close())

			m, err := ReadManifest(dir)
			require.NoError(t, err)
			assert.Equal(t, b.Kind(), m.Kind)
			assert.Equal(t, FormatVersion, m.Version)
			assert.Equal(t, 3, m.Dimensions)
			assert.Equal(t, 4, m.Count)
			assert.Equal(t, "test-model", m.EmbeddingModel)
			assert.Equal(t, 1000, m.ChunkSize)
			assert.False(t, m.CreatedAt.IsZero())

			loaded, err := registry.Open(ctx, dir)
			require.NoError(t, err)
			defer loaded.Close()

			assert.Equal(t, b.Kind(), loaded.Kind())
			assert.Equal(t, 4, loaded.Len())
			got, err := loaded.Search(ctx, query, 4)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestRegistry_OpenMissingIsNotFound(t *testing.T) {
	registry := DefaultRegistry()

	_, err := registry.Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, entities.ErrIndexNotFound)

	_, err = registry.Open(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, entities.ErrIndexNotFound)
}

func TestRegistry_OpenUnreadableIsNotReady(t *testing.T) {
	ctx := context.Background()
	registry := DefaultRegistry()

	file := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err := registry.Open(ctx, file)
	assert.ErrorIs(t, err, entities.ErrIndexCorrupt)

	// Manifest present but the flat data file is a directory.
	idx, err := (&FlatBackend{}).Build(ctx, testEntries())
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, idx.Save(ctx, dir, meta))
	require.NoError(t, os.Remove(filepath.Join(dir, flatDataFile)))
	require.NoError(t, os.Mkdir(filepath.Join(dir, flatDataFile), 0o755))
	_, err = registry.Open(ctx, dir)
	assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
}

func TestRegistry_OpenCorrupt(t *testing.T) {
	ctx := context.Background()
	registry := DefaultRegistry()

	saved := func(t *testing.T, b ports.IndexBackend) string {
		idx, err := b.Build(ctx, testEntries())
		require.NoError(t, err)
		dir := t.TempDir()
		require.NoError(t, idx.Save(ctx, dir, meta))
		require.NoError(t, idx.Close())
		return dir
	}

	t.Run("unparsable manifest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("kind: [flat"), 0o644))
		_, err := registry.Open(ctx, dir)
		assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
	})

	t.Run("unknown kind", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("version: 1\nkind: faiss\n"), 0o644))
		_, err := registry.Open(ctx, dir)
		assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
	})

	for _, b := range backends(t) {
		t.Run(b.Kind()+" missing data", func(t *testing.T) {
			dir := saved(t, b)
			files, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, f := range files {
				if f.Name() != ManifestFile {
					require.NoError(t, os.Remove(filepath.Join(dir, f.Name())))
				}
			}
			_, err = registry.Open(ctx, dir)
			assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
		})
	}

	t.Run("flat garbage entries", func(t *testing.T) {
		dir := saved(t, NewFlatBackend())
		require.NoError(t, os.WriteFile(filepath.Join(dir, flatDataFile), []byte("{not json"), 0o644))
		_, err := registry.Open(ctx, dir)
		assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
	})

	t.Run("count mismatch", func(t *testing.T) {
		dir := saved(t, NewFlatBackend())
		m, err := ReadManifest(dir)
		require.NoError(t, err)
		m.Count = 7
		require.NoError(t, writeManifest(dir, m))
		_, err = registry.Open(ctx, dir)
		assert.ErrorIs(t, err, entities.ErrIndexCorrupt)
	})
}

func TestRegistry_Backend(t *testing.T) {
	registry := DefaultRegistry()

	assert.Equal(t, []string{"bolt", "flat", "sqlite"}, registry.Kinds())
	b, err := registry.Backend("sqlite")
	require.NoError(t, err)
	assert.Equal(t, KindSQLite, b.Kind())

	_, err = registry.Backend("faiss")
	assert.Error(t, err)
}

func TestBoltIndex_CloseRemovesScratch(t *testing.T) {
	scratch := t.TempDir()
	idx, err := (&BoltBackend{ScratchDir: scratch}).Build(context.Background(), testEntries())
	require.NoError(t, err)

	require.NoError(t, idx.Close())

	files, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
}
