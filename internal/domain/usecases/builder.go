package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// DefaultBatchSize is the number of chunks sent per EmbedBatch call.
const DefaultBatchSize = 64

// BuildRequest describes one index build.
type BuildRequest struct {
	PDFDir       string
	OutDir       string
	StoreKind    string
	ChunkSize    int
	ChunkOverlap int
}

// IndexBuilder runs load -> chunk -> embed -> build -> save and commits the
// result into OutDir only when every stage succeeded.
type IndexBuilder struct {
	loader    ports.DocumentLoader
	embedder  ports.EmbeddingService
	store     ports.IndexStore
	batchSize int
	progress  ports.ProgressReporter
}

// BuilderOption configures an IndexBuilder.
type BuilderOption func(*IndexBuilder)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) BuilderOption {
	return func(b *IndexBuilder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithProgress reports embedding progress to p.
func WithProgress(p ports.ProgressReporter) BuilderOption {
	return func(b *IndexBuilder) {
		if p != nil {
			b.progress = p
		}
	}
}

// NewIndexBuilder creates an IndexBuilder with injected dependencies.
func NewIndexBuilder(
	loader ports.DocumentLoader,
	embedder ports.EmbeddingService,
	store ports.IndexStore,
	opts ...BuilderOption,
) *IndexBuilder {
	b := &IndexBuilder{
		loader:    loader,
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		progress:  nopProgress{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates a new index for req. On any failure OutDir is left untouched.
func (b *IndexBuilder) Build(ctx context.Context, req BuildRequest) (*entities.BuildReport, error) {
	start := time.Now()

	if req.PDFDir == "" || req.OutDir == "" {
		return nil, fmt.Errorf("%w: pdf dir and output dir are required", entities.ErrValidation)
	}
	chunker, err := NewTokenChunker(req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	backend, err := b.store.Backend(req.StoreKind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrValidation, err)
	}

	docs, err := b.loader.LoadDirectory(ctx, req.PDFDir)
	if err != nil {
		return nil, err
	}
	pages := 0
	for _, d := range docs {
		pages += len(d.Pages)
	}

	chunks := chunker.SplitAll(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no extractable text in %s", entities.ErrNotFound, req.PDFDir)
	}
	logger.Info("Loaded %d chunks from %d pages of %d documents", len(chunks), pages, len(docs))

	entries, err := b.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	idx, err := backend.Build(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("building %s index: %w", backend.Kind(), err)
	}
	defer idx.Close()

	meta := ports.IndexMeta{
		EmbeddingModel: b.embedder.ModelName(),
		ChunkSize:      req.ChunkSize,
		ChunkOverlap:   req.ChunkOverlap,
	}
	if err := commitIndex(ctx, idx, req.OutDir, meta); err != nil {
		return nil, err
	}

	report := &entities.BuildReport{
		DocumentsProcessed: len(docs),
		PagesProcessed:     pages,
		ChunksIndexed:      idx.Len(),
		StoreKind:          backend.Kind(),
		OutDir:             req.OutDir,
		Duration:           time.Since(start),
	}
	logger.Info("Index saved to %s (%s, %d chunks) in %v", req.OutDir, report.StoreKind, report.ChunksIndexed, report.Duration.Round(time.Millisecond))
	return report, nil
}

// embed attaches vectors to chunks, batchSize texts per provider call.
func (b *IndexBuilder) embed(ctx context.Context, chunks []entities.Chunk) ([]entities.IndexEntry, error) {
	b.progress.Start(len(chunks), "embedding")
	defer b.progress.Finish()

	entries := make([]entities.IndexEntry, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", entities.ErrProvider, len(vectors), len(batch))
		}
		for i, c := range batch {
			entries = append(entries, entities.IndexEntry{Chunk: c, Vector: vectors[i]})
		}
		b.progress.Add(len(batch))
	}
	return entries, nil
}

// commitIndex saves idx into a staging sibling of outDir and then moves it
// into place, so outDir is never observed half written.
func commitIndex(ctx context.Context, idx ports.VectorIndex, outDir string, meta ports.IndexMeta) error {
	outDir = filepath.Clean(outDir)
	if err := os.MkdirAll(filepath.Dir(outDir), 0o755); err != nil {
		return fmt.Errorf("creating index parent dir: %w", err)
	}

	staging := outDir + ".staging-" + uuid.NewString()
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	if err := idx.Save(ctx, staging, meta); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := swapDir(staging, outDir); err != nil {
		return err
	}
	committed = true
	return nil
}

// swapDir replaces dst with src. The previous dst is restored if the final
// rename fails.
func swapDir(src, dst string) error {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = dst + ".old-" + uuid.NewString()
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("moving previous index aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking index dir: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			if rerr := os.Rename(old, dst); rerr != nil {
				logger.Error("Restoring previous index from %s failed: %v", old, rerr)
			}
		}
		return fmt.Errorf("moving new index into place: %w", err)
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			logger.Warn("Removing previous index %s: %v", old, err)
		}
	}
	return nil
}

type nopProgress struct{}

func (nopProgress) Start(int, string) {}
func (nopProgress) Add(int)           {}
func (nopProgress) Finish()           {}
