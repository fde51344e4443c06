// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/usecases"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// Health statuses reported by /healthz.
const (
	StatusHealthy           = "healthy"
	StatusUnhealthy         = "unhealthy"
	StatusDevelopmentNoIdx  = "development_mode_no_index"
	refreshSucceededMessage = "Index refreshed successfully"
	uploadNotImplemented    = "Upload endpoint not yet implemented"
	maxBodyBytes            = 1 << 20
)

// Options configures the server.
type Options struct {
	Addr         string
	Version      string
	Development  bool // report development_mode_no_index instead of unhealthy
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server for the RAG API.
type Server struct {
	chain   *usecases.ConversationalChain
	manager *usecases.IndexManager
	opts    Options
}

// NewServer creates a new HTTP server.
func NewServer(chain *usecases.ConversationalChain, manager *usecases.IndexManager, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 300 * time.Second // Longer for streaming
	}
	return &Server{chain: chain, manager: manager, opts: opts}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /query/stream", s.handleQueryStream)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	return corsMiddleware(loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	logger.Info("DocuRAG server starting on %s", s.opts.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type queryRequest struct {
	Question    string     `json:"question"`
	ChatHistory [][]string `json:"chat_history"`
}

func (q queryRequest) toEntity() (entities.QueryRequest, error) {
	req := entities.QueryRequest{Question: q.Question}
	for i, pair := range q.ChatHistory {
		if len(pair) != 2 {
			return req, fmt.Errorf("%w: chat_history[%d] must be a [question, answer] pair", entities.ErrValidation, i)
		}
		req.History = append(req.History, entities.Turn{Question: pair[0], Answer: pair[1]})
	}
	return req, nil
}

type sourceResponse struct {
	FileName   string `json:"file_name"`
	PageNumber *int   `json:"page_number"`
	Excerpt    string `json:"excerpt"`
}

type queryResponse struct {
	Answer  string           `json:"answer"`
	Sources []sourceResponse `json:"sources"`
}

func toSourceResponses(sources []entities.Source) []sourceResponse {
	out := make([]sourceResponse, len(sources))
	for i, src := range sources {
		out[i] = sourceResponse{FileName: src.FileName, Excerpt: src.Excerpt}
		if src.PageNumber > 0 {
			page := src.PageNumber
			out[i].PageNumber = &page
		}
	}
	return out
}

// handleQuery answers a question with sources.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	answer, err := s.chain.Query(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:  answer.Text,
		Sources: toSourceResponses(answer.Sources),
	})
}

// handleQueryStream streams the answer as server-sent events.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.New("streaming not supported"))
		return
	}

	stream, err := s.chain.QueryStream(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for token := range stream.Tokens {
		if token.Error != nil {
			logger.Warn("[%s] stream failed: %v", requestID(r), token.Error)
			sendSSE(w, flusher, "[ERROR] "+token.Error.Error())
			return
		}
		if token.Content != "" {
			sendSSE(w, flusher, token.Content)
		}
		if token.Done {
			break
		}
	}
	if r.Context().Err() != nil {
		return
	}
	sendSSE(w, flusher, fmt.Sprintf("[SOURCES] %d documents", len(stream.Sources)))
	sendSSE(w, flusher, "[DONE]")
}

// sendSSE writes one event; embedded newlines become extra data lines.
func sendSSE(w http.ResponseWriter, flusher http.Flusher, data string) {
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
	flusher.Flush()
}

type refreshRequest struct {
	PDFDir string `json:"pdf_dir"`
}

type refreshResponse struct {
	Message            string `json:"message"`
	DocumentsProcessed int    `json:"documents_processed"`
	ChunksIndexed      int    `json:"chunks_indexed"`
}

// handleRefresh rebuilds the index. It works with no index loaded.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, err)
		return
	}

	report, err := s.manager.Refresh(r.Context(), req.PDFDir)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Message:            refreshSucceededMessage,
		DocumentsProcessed: report.DocumentsProcessed,
		ChunksIndexed:      report.ChunksIndexed,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, errorResponse{Detail: uploadNotImplemented})
}

type indexStatus struct {
	Loaded     bool       `json:"loaded"`
	Building   bool       `json:"building"`
	Kind       string     `json:"kind,omitempty"`
	Chunks     int        `json:"chunks"`
	Dimensions int        `json:"dimensions,omitempty"`
	Version    uint64     `json:"version,omitempty"`
	Path       string     `json:"path,omitempty"`
	LoadedAt   *time.Time `json:"loaded_at,omitempty"`
}

type healthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Index   indexStatus `json:"index"`
}

func (s *Server) indexStatus() indexStatus {
	st := indexStatus{Building: s.manager.Building()}
	if snap := s.manager.Snapshot(); snap != nil {
		loadedAt := snap.LoadedAt
		st.Loaded = true
		st.Kind = snap.Index.Kind()
		st.Chunks = snap.Index.Len()
		st.Dimensions = snap.Index.Dimensions()
		st.Version = snap.Version
		st.Path = snap.Dir
		st.LoadedAt = &loadedAt
	}
	return st
}

// handleHealth always answers 200; the status field carries readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := StatusHealthy
	if !s.manager.Ready() {
		status = StatusUnhealthy
		if s.opts.Development {
			status = StatusDevelopmentNoIdx
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  status,
		Version: s.opts.Version,
		Index:   s.indexStatus(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeQuery(r *http.Request) (entities.QueryRequest, error) {
	var body queryRequest
	if err := decodeJSON(r, &body); err != nil {
		return entities.QueryRequest{}, err
	}
	return body.toEntity()
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body: %w", entities.ErrValidation, err)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", entities.ErrValidation, err)
	}
	return nil
}
