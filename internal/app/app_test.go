package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docurag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/docurag-go/internal/adapters/llm"
	"github.com/0xcro3dile/docurag-go/internal/adapters/pdfgen"
	"github.com/0xcro3dile/docurag-go/internal/config"
	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Environment = config.EnvTesting
	cfg.LLM.MockDelay = time.Millisecond
	cfg.Ingest.PDFDir = filepath.Join(root, "pdfs")
	cfg.Index.Path = filepath.Join(root, "index")
	require.NoError(t, os.MkdirAll(cfg.Ingest.PDFDir, 0o755))
	return cfg
}

func TestApp_EndToEnd(t *testing.T) {
	for _, store := range []string{"flat", "sqlite", "bolt"} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Index.Store = store
			require.NoError(t, pdfgen.WriteFile(filepath.Join(cfg.Ingest.PDFDir, "synthetic.pdf"), pdfgen.Doc{
				Pages: []string{
					"Machine learning is a subset of AI.",
					"Neural networks are inspired by the brain.",
				},
			}))

			a, err := New(cfg)
			require.NoError(t, err)
			defer a.Close()
			ctx := context.Background()

			report, err := a.Manager.Refresh(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, 1, report.DocumentsProcessed)
			assert.Equal(t, 2, report.ChunksIndexed)

			answer, err := a.Chain.Query(ctx, entities.QueryRequest{Question: "What is machine learning?"})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(answer.Text, llm.MockTemplatePrefix), answer.Text)
			require.Len(t, answer.Sources, 2)
			assert.Equal(t, "synthetic.pdf", answer.Sources[0].FileName)
			assert.Equal(t, 1, answer.Sources[0].PageNumber)
			assert.Contains(t, answer.Sources[0].Excerpt, "Machine learning is a subset of AI.")

			// A fresh process serves the persisted index.
			again, err := New(cfg)
			require.NoError(t, err)
			defer again.Close()
			require.NoError(t, again.LoadIndex(ctx))
			assert.True(t, again.Manager.Ready())
		})
	}
}

func TestApp_HeldIndexSurvivesRefresh(t *testing.T) {
	for _, store := range []string{"flat", "sqlite", "bolt"} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Index.Store = store
			_, err := pdfgen.WriteCorpus(cfg.Ingest.PDFDir, pdfgen.SampleCorpus())
			require.NoError(t, err)

			a, err := New(cfg)
			require.NoError(t, err)
			defer a.Close()
			ctx := context.Background()

			_, err = a.Manager.Refresh(ctx, "")
			require.NoError(t, err)
			old, release := a.Manager.Acquire()
			require.NotNil(t, old)

			_, err = a.Manager.Refresh(ctx, "")
			require.NoError(t, err)
			assert.NotSame(t, old, a.Manager.Current())

			vector, err := a.Embedder.Embed(ctx, "What is a neural network?")
			require.NoError(t, err)
			hits, err := old.Search(ctx, vector, 2)
			require.NoError(t, err)
			assert.Len(t, hits, 2)
			release()
		})
	}
}

func TestApp_LoadIndexUnreadablePathIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Path = filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(cfg.Index.Path, []byte("not a directory"), 0o644))

	a, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, a.LoadIndex(context.Background()))
	assert.False(t, a.Manager.Ready())
}

func TestApp_RefreshEmptyDirKeepsServingPreviousIndex(t *testing.T) {
	cfg := testConfig(t)
	_, err := pdfgen.WriteCorpus(cfg.Ingest.PDFDir, pdfgen.SampleCorpus())
	require.NoError(t, err)

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	_, err = a.Manager.Refresh(ctx, "")
	require.NoError(t, err)

	empty := t.TempDir()
	_, err = a.Manager.Refresh(ctx, empty)
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.True(t, a.Manager.Ready())

	_, err = a.Chain.Query(ctx, entities.QueryRequest{Question: "What is a neural network?"})
	assert.NoError(t, err)
}

func TestApp_LoadIndexWithoutIndexIsNotFatal(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, a.LoadIndex(context.Background()))
	assert.False(t, a.Manager.Ready())

	_, err = a.Chain.Query(context.Background(), entities.QueryRequest{Question: "anything"})
	assert.ErrorIs(t, err, entities.ErrServiceUnavailable)
}

func TestNew_ProviderSelection(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.MockEmbedder{}, a.Embedder)
	assert.IsType(t, &llm.MockLLM{}, a.LLM)

	cfg.Embedding.Provider = config.ProviderOllama
	cfg.LLM.Provider = config.ProviderOpenAI
	a, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.OllamaEmbedder{}, a.Embedder)
	assert.IsType(t, &llm.OpenAILLM{}, a.LLM)

	cfg.LLM.Provider = "bogus"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.LLM.Provider = config.ProviderMock
	cfg.Index.Store = "lance"
	_, err = New(cfg)
	assert.Error(t, err)
}
