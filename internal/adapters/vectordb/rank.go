package vectordb

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
)

// record is the stored form of one index entry, shared by every backend.
type record struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SourceFile string    `json:"source_file"`
	PageNumber int       `json:"page_number,omitempty"`
	Index      int       `json:"chunk_index"`
	Vector     []float32 `json:"vector"`
}

func toRecord(e entities.IndexEntry) record {
	return record{
		ID:         e.Chunk.ID,
		Text:       e.Chunk.Text,
		SourceFile: e.Chunk.SourceFile,
		PageNumber: e.Chunk.PageNumber,
		Index:      e.Chunk.Index,
		Vector:     e.Vector,
	}
}

func (r record) chunk() entities.Chunk {
	return entities.Chunk{
		ID:         r.ID,
		Text:       r.Text,
		SourceFile: r.SourceFile,
		PageNumber: r.PageNumber,
		Index:      r.Index,
	}
}

// prepare validates entries and returns normalized copies plus the common
// dimension (0 for an empty set).
func prepare(entries []entities.IndexEntry) ([]entities.IndexEntry, int, error) {
	if len(entries) == 0 {
		return nil, 0, nil
	}
	dims := len(entries[0].Vector)
	out := make([]entities.IndexEntry, len(entries))
	for i, e := range entries {
		if len(e.Vector) == 0 || len(e.Vector) != dims {
			return nil, 0, fmt.Errorf("%w: entry %d has %d dimensions, want %d",
				entities.ErrValidation, i, len(e.Vector), dims)
		}
		out[i] = entities.IndexEntry{Chunk: e.Chunk, Vector: normalize(e.Vector)}
	}
	return out, dims, nil
}

// normalize returns a unit-length copy of v. Zero vectors stay zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// checkQuery rejects queries whose dimension differs from a non-empty index.
func checkQuery(q []float32, dims int) error {
	if dims > 0 && len(q) != dims {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", entities.ErrValidation, len(q), dims)
	}
	return nil
}

// topK orders hits by score, keeping insertion order for ties, and keeps at most k.
func topK(hits []entities.SearchHit, k int) []entities.SearchHit {
	if k <= 0 {
		return []entities.SearchHit{}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func encodeVector(v []float32) ([]byte, error) {
	return json.Marshal(v)
}

func decodeVector(data []byte, dims int) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if len(v) != dims {
		return nil, fmt.Errorf("vector has %d dimensions, want %d", len(v), dims)
	}
	return v, nil
}
