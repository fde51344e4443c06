package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

const flatDataFile = "entries.json"

// FlatBackend builds exact in-memory indexes persisted as a JSON entry list.
type FlatBackend struct{}

// NewFlatBackend creates the flat backend.
func NewFlatBackend() *FlatBackend { return &FlatBackend{} }

// Kind returns "flat".
func (*FlatBackend) Kind() string { return KindFlat }

// Build normalizes entries and holds them in memory.
func (*FlatBackend) Build(ctx context.Context, entries []entities.IndexEntry) (ports.VectorIndex, error) {
	normalized, dims, err := prepare(entries)
	if err != nil {
		return nil, err
	}
	return &FlatIndex{entries: normalized, dims: dims}, nil
}

// Load reads an index saved by FlatIndex.Save.
func (*FlatBackend) Load(ctx context.Context, dir string) (ports.VectorIndex, error) {
	m, err := readManifestKind(dir, KindFlat)
	if err != nil {
		return nil, err
	}
	path, err := dataFile(dir, flatDataFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", entities.ErrIndexCorrupt, flatDataFile, err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", entities.ErrIndexCorrupt, flatDataFile, err)
	}
	if err := checkCount(m, len(records)); err != nil {
		return nil, err
	}

	entries := make([]entities.IndexEntry, len(records))
	for i, r := range records {
		if len(r.Vector) != m.Dimensions {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, manifest says %d",
				entities.ErrIndexCorrupt, r.ID, len(r.Vector), m.Dimensions)
		}
		entries[i] = entities.IndexEntry{Chunk: r.chunk(), Vector: r.Vector}
	}
	return &FlatIndex{entries: entries, dims: m.Dimensions}, nil
}

// FlatIndex is an immutable slice of normalized entries searched exhaustively.
type FlatIndex struct {
	entries []entities.IndexEntry
	dims    int
}

// Search scores every entry against the normalized query.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]entities.SearchHit, error) {
	if err := checkQuery(query, x.dims); err != nil {
		return nil, err
	}
	q := normalize(query)
	hits := make([]entities.SearchHit, len(x.entries))
	for i, e := range x.entries {
		hits[i] = entities.SearchHit{Chunk: e.Chunk, Score: dot(q, e.Vector)}
	}
	return topK(hits, k), nil
}

// Len returns the number of entries.
func (x *FlatIndex) Len() int { return len(x.entries) }

// Dimensions returns the vector size.
func (x *FlatIndex) Dimensions() int { return x.dims }

// Kind returns "flat".
func (x *FlatIndex) Kind() string { return KindFlat }

// Save writes entries.json and then the manifest.
func (x *FlatIndex) Save(ctx context.Context, dir string, meta ports.IndexMeta) error {
	records := make([]record, len(x.entries))
	for i, e := range x.entries {
		records[i] = toRecord(e)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding entries: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, flatDataFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", flatDataFile, err)
	}
	return writeManifest(dir, newManifest(KindFlat, x.dims, len(x.entries), meta))
}

// Close is a no-op.
func (x *FlatIndex) Close() error { return nil }
