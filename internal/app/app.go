// Package app wires configuration into the adapters and use cases.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/0xcro3dile/docurag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/docurag-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/docurag-go/internal/adapters/llm"
	"github.com/0xcro3dile/docurag-go/internal/adapters/loader"
	"github.com/0xcro3dile/docurag-go/internal/adapters/parser"
	"github.com/0xcro3dile/docurag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docurag-go/internal/config"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
	"github.com/0xcro3dile/docurag-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/docurag-go/internal/infrastructure/http"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Embedder ports.EmbeddingService
	LLM      ports.LLMService
	Store    *vectordb.Registry
	Loader   *loader.DirectoryLoader
	Builder  *usecases.IndexBuilder
	Manager  *usecases.IndexManager
	Chain    *usecases.ConversationalChain
}

// Option customizes New.
type Option func(*options)

type options struct {
	progress ports.ProgressReporter
}

// WithProgress reports index build progress to p.
func WithProgress(p ports.ProgressReporter) Option {
	return func(o *options) { o.progress = p }
}

// New builds every component from cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	model, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}

	store := vectordb.DefaultRegistry()
	if _, err := store.Backend(cfg.Index.Store); err != nil {
		return nil, err
	}

	docs := loader.NewDirectoryLoader(parser.NewPDFParser(), cfg.Ingest.Pattern)
	builder := usecases.NewIndexBuilder(docs, embedder, store,
		usecases.WithBatchSize(cfg.Embedding.BatchSize),
		usecases.WithProgress(o.progress),
	)

	a := &App{
		Config:   cfg,
		Embedder: embedder,
		LLM:      model,
		Store:    store,
		Loader:   docs,
		Builder:  builder,
	}
	a.Manager = usecases.NewIndexManager(store, builder, embedder, a.BuildRequest())
	a.Chain = usecases.NewConversationalChain(embedder, model, a.Manager, a.rewriter(), cfg.Retrieval.K)

	logger.Debug("Embedding: %s (%s), LLM: %s, store: %s",
		cfg.EmbeddingProvider(), embedder.ModelName(), cfg.LLMProvider(), cfg.Index.Store)
	return a, nil
}

// BuildRequest returns the configured build parameters.
func (a *App) BuildRequest() usecases.BuildRequest {
	return usecases.BuildRequest{
		PDFDir:       a.Config.Ingest.PDFDir,
		OutDir:       a.Config.Index.Path,
		StoreKind:    a.Config.Index.Store,
		ChunkSize:    a.Config.Ingest.ChunkSize,
		ChunkOverlap: a.Config.Ingest.ChunkOverlap,
	}
}

func (a *App) rewriter() usecases.QueryRewriter {
	if a.Config.Retrieval.Rewrite == config.RewriteLLM {
		return usecases.LLMRewriter{LLM: a.LLM, Turns: a.Config.Retrieval.HistoryTurns}
	}
	return usecases.HistoryRewriter{Turns: a.Config.Retrieval.HistoryTurns}
}

// LoadIndex serves the persisted index if there is one. A missing or
// unreadable index is logged and leaves the app not ready.
func (a *App) LoadIndex(ctx context.Context) error {
	err := a.Manager.Load(ctx)
	switch {
	case err == nil:
		return nil
	case usecases.IsNotReady(err):
		logger.Warn("No servable index at %s: %v (POST /refresh or run build-index)", a.Config.Index.Path, err)
		return nil
	default:
		return err
	}
}

// NewServer returns the HTTP API over this app.
func (a *App) NewServer(version string) *httpserver.Server {
	return httpserver.NewServer(a.Chain, a.Manager, httpserver.Options{
		Addr:         a.Config.Server.Addr(),
		Version:      version,
		Development:  a.Config.IsDevelopment(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	})
}

// Serve loads the index, optionally watches the PDF directory, and runs the
// HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context, version string) error {
	if err := a.LoadIndex(ctx); err != nil {
		return err
	}

	if a.Config.Ingest.Watch {
		stop, err := a.startAutoRefresh(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	return a.NewServer(version).Start(ctx)
}

func (a *App) startAutoRefresh(ctx context.Context) (func(), error) {
	watcher, err := filewatcher.NewFSNotifyWatcher(nil)
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	refresher := &usecases.AutoRefresher{
		Watcher:   watcher,
		Refresher: a.Manager,
		Dir:       a.Config.Ingest.PDFDir,
		Debounce:  a.Config.Ingest.WatchDebounce,
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Watching %s: %v", refresher.Dir, err)
		}
	}()
	logger.Info("Watching %s for PDF changes", refresher.Dir)

	return func() {
		cancel()
		<-done
		watcher.Stop()
	}, nil
}

// Close releases the serving index.
func (a *App) Close() error {
	return a.Manager.Close()
}

// NewEmbedder creates the configured embedding provider.
func NewEmbedder(cfg *config.Config) (ports.EmbeddingService, error) {
	e := cfg.Embedding
	switch p := cfg.EmbeddingProvider(); p {
	case config.ProviderMock:
		return embedding.NewMockEmbedder(e.Dimensions), nil
	case config.ProviderOpenAI:
		return embedding.NewOpenAIEmbedder(embedding.Options{
			BaseURL:           e.BaseURL,
			Model:             e.Model,
			APIKey:            apiKey(e.APIKeyEnv, cfg),
			Dimensions:        e.Dimensions,
			Timeout:           e.Timeout,
			MaxRetries:        e.MaxRetries,
			RequestsPerSecond: e.RequestsPerSecond,
		}), nil
	case config.ProviderOllama:
		return embedding.NewOllamaEmbedder(embedding.Options{
			BaseURL:           e.BaseURL,
			Model:             e.Model,
			Timeout:           e.Timeout,
			MaxRetries:        e.MaxRetries,
			RequestsPerSecond: e.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", p)
	}
}

// NewLLM creates the configured language model provider.
func NewLLM(cfg *config.Config) (ports.LLMService, error) {
	l := cfg.LLM
	opts := llm.Options{
		BaseURL:           l.BaseURL,
		Model:             l.Model,
		Temperature:       l.Temperature,
		Timeout:           l.Timeout,
		MaxRetries:        l.MaxRetries,
		RequestsPerSecond: l.RequestsPerSecond,
	}
	switch p := cfg.LLMProvider(); p {
	case config.ProviderMock:
		return llm.NewMockLLM(l.MockDelay), nil
	case config.ProviderOpenAI:
		opts.APIKey = cfg.APIKey()
		return llm.NewOpenAILLM(opts), nil
	case config.ProviderOllama:
		return llm.NewOllamaLLM(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", p)
	}
}

func apiKey(env string, cfg *config.Config) string {
	if env != "" {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return cfg.APIKey()
}
