package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// mockEmbedder implements ports.EmbeddingService for testing.
// The default vector counts a few keywords so retrieval order is predictable.
type mockEmbedder struct {
	mu      sync.Mutex
	embedFn func(text string) ([]float32, error)
	calls   []string
}

var keywords = []string{"machine", "learning", "neural", "brain", "data"}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	v := make([]float32, len(keywords)+1)
	lower := strings.ToLower(text)
	for i, k := range keywords {
		v[i] = float32(strings.Count(lower, k))
	}
	v[len(keywords)] = 0.01
	return v, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int   { return 0 }
func (m *mockEmbedder) ModelName() string { return "mock-keywords" }

func (m *mockEmbedder) embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockLLM implements ports.LLMService for testing.
type mockLLM struct {
	mu         sync.Mutex
	response   string
	generateFn func(prompt string) (string, error)
	streamErr  error
	prompts    []string
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.generateFn != nil {
		return m.generateFn(prompt)
	}
	if m.response != "" {
		return m.response, nil
	}
	return "mocked answer", nil
}

func (m *mockLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	answer, err := m.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	ch := make(chan ports.StreamToken, 1)
	go func() {
		defer close(ch)
		for _, w := range strings.Fields(answer) {
			ch <- ports.StreamToken{Content: w + " "}
		}
		ch <- ports.StreamToken{Done: true}
	}()
	return ch, nil
}

func (m *mockLLM) ModelName() string { return "mock-llm" }

func (m *mockLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// mockLoader implements ports.DocumentLoader for testing.
type mockLoader struct {
	docs    []entities.Document
	err     error
	started chan struct{} // closed when LoadDirectory is entered
	release chan struct{} // LoadDirectory blocks until closed
	dirs    []string
	mu      sync.Mutex
}

func (m *mockLoader) LoadDirectory(ctx context.Context, dir string) ([]entities.Document, error) {
	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.docs, nil
}

// memIndex implements ports.VectorIndex with raw dot products.
type memIndex struct {
	entries []entities.IndexEntry
	closed  bool
	mu      sync.Mutex
}

func (x *memIndex) Search(ctx context.Context, q []float32, k int) ([]entities.SearchHit, error) {
	hits := make([]entities.SearchHit, len(x.entries))
	for i, e := range x.entries {
		var s float64
		for j := range q {
			if j < len(e.Vector) {
				s += float64(q[j]) * float64(e.Vector[j])
			}
		}
		hits[i] = entities.SearchHit{Chunk: e.Chunk, Score: s}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *memIndex) Len() int { return len(x.entries) }

func (x *memIndex) Dimensions() int {
	if len(x.entries) == 0 {
		return 0
	}
	return len(x.entries[0].Vector)
}

func (x *memIndex) Kind() string { return "mem" }

func (x *memIndex) Save(ctx context.Context, dir string, meta ports.IndexMeta) error {
	data, err := json.Marshal(x.entries)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "mem.json"), data, 0o644)
}

func (x *memIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	return nil
}

func (x *memIndex) isClosed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.closed
}

// memStore implements ports.IndexStore and ports.IndexBackend for "mem".
type memStore struct {
	saveErr error
}

func (s *memStore) Backend(kind string) (ports.IndexBackend, error) {
	if kind != "mem" {
		return nil, fmt.Errorf("unknown index store %q", kind)
	}
	return s, nil
}

func (s *memStore) Kind() string { return "mem" }

func (s *memStore) Build(ctx context.Context, entries []entities.IndexEntry) (ports.VectorIndex, error) {
	idx := &memIndex{entries: entries}
	if s.saveErr != nil {
		return &failingSaveIndex{memIndex: idx, err: s.saveErr}, nil
	}
	return idx, nil
}

func (s *memStore) Load(ctx context.Context, dir string) (ports.VectorIndex, error) {
	data, err := os.ReadFile(filepath.Join(dir, "mem.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", entities.ErrIndexNotFound, dir)
	}
	if err != nil {
		return nil, err
	}
	var entries []entities.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrIndexCorrupt, err)
	}
	return &memIndex{entries: entries}, nil
}

func (s *memStore) Open(ctx context.Context, dir string) (ports.VectorIndex, error) {
	return s.Load(ctx, dir)
}

type failingSaveIndex struct {
	*memIndex
	err error
}

func (f *failingSaveIndex) Save(context.Context, string, ports.IndexMeta) error { return f.err }

// staticIndexes implements IndexProvider.
type staticIndexes struct {
	idx ports.VectorIndex
}

func (s staticIndexes) Acquire() (ports.VectorIndex, func()) { return s.idx, func() {} }

// recordingProgress implements ports.ProgressReporter.
type recordingProgress struct {
	total, done int
	finished    bool
}

func (p *recordingProgress) Start(total int, _ string) { p.total = total }
func (p *recordingProgress) Add(n int)                 { p.done += n }
func (p *recordingProgress) Finish()                   { p.finished = true }

func twoPageDoc() entities.Document {
	return entities.Document{
		Name: "synthetic.pdf",
		Pages: []entities.Page{
			{Number: 1, Text: "Machine learning is a subset of AI."},
			{Number: 2, Text: "Neural networks are inspired by the brain."},
		},
	}
}

func indexOf(t interface{ Helper() }, docs ...entities.Document) *memIndex {
	t.Helper()
	c, _ := NewTokenChunker(1000, 100)
	emb := &mockEmbedder{}
	var entries []entities.IndexEntry
	for _, chunk := range c.SplitAll(docs) {
		v, _ := emb.Embed(context.Background(), chunk.Text)
		entries = append(entries, entities.IndexEntry{Chunk: chunk, Vector: v})
	}
	return &memIndex{entries: entries}
}
