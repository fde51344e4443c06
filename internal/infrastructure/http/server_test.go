package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docurag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/docurag-go/internal/adapters/llm"
	"github.com/0xcro3dile/docurag-go/internal/adapters/loader"
	"github.com/0xcro3dile/docurag-go/internal/adapters/parser"
	"github.com/0xcro3dile/docurag-go/internal/adapters/pdfgen"
	"github.com/0xcro3dile/docurag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/usecases"
)

type testEnv struct {
	server  *httptest.Server
	manager *usecases.IndexManager
	pdfDir  string
}

func newTestEnv(t *testing.T, development bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	pdfDir := filepath.Join(root, "pdfs")
	_, err := pdfgen.WriteCorpus(pdfDir, pdfgen.SampleCorpus())
	require.NoError(t, err)

	embedder := embedding.NewMockEmbedder(256)
	store := vectordb.DefaultRegistry()
	builder := usecases.NewIndexBuilder(loader.NewDirectoryLoader(parser.NewPDFParser(), ""), embedder, store)
	manager := usecases.NewIndexManager(store, builder, embedder, usecases.BuildRequest{
		PDFDir:       pdfDir,
		OutDir:       filepath.Join(root, "index"),
		StoreKind:    vectordb.KindFlat,
		ChunkSize:    1000,
		ChunkOverlap: 100,
	})
	t.Cleanup(func() { manager.Close() })

	chain := usecases.NewConversationalChain(embedder, llm.NewMockLLM(0), manager, nil, 4)
	srv := NewServer(chain, manager, Options{Version: "test", Development: development})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, manager: manager, pdfDir: pdfDir}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_HealthWithoutIndex(t *testing.T) {
	dev := newTestEnv(t, true)
	resp := dev.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[healthResponse](t, resp)
	assert.Equal(t, StatusDevelopmentNoIdx, health.Status)
	assert.Equal(t, "test", health.Version)
	assert.False(t, health.Index.Loaded)

	prod := newTestEnv(t, false)
	resp = prod.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusUnhealthy, decode[healthResponse](t, resp).Status)

	assert.Equal(t, http.StatusServiceUnavailable, prod.get(t, "/readyz").StatusCode)
}

func TestServer_QueryWithoutIndexIsUnavailable(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.post(t, "/query", `{"question":"What is machine learning?"}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, decode[errorResponse](t, resp).Detail)
}

func TestServer_RefreshThenQuery(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.post(t, "/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decode[refreshResponse](t, resp)
	assert.Equal(t, refreshSucceededMessage, refreshed.Message)
	assert.Equal(t, 3, refreshed.DocumentsProcessed)
	assert.Positive(t, refreshed.ChunksIndexed)

	assert.Equal(t, http.StatusOK, env.get(t, "/readyz").StatusCode)
	health := decode[healthResponse](t, env.get(t, "/healthz"))
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, vectordb.KindFlat, health.Index.Kind)
	assert.Equal(t, refreshed.ChunksIndexed, health.Index.Chunks)

	resp = env.post(t, "/query", `{"question":"What is machine learning?","chat_history":[["hi","hello"]]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answer := decode[queryResponse](t, resp)
	assert.True(t, strings.HasPrefix(answer.Answer, llm.MockTemplatePrefix), answer.Answer)
	require.NotEmpty(t, answer.Sources)
	assert.LessOrEqual(t, len(answer.Sources), 4)
	for _, src := range answer.Sources {
		assert.True(t, strings.HasSuffix(src.FileName, ".pdf"), src.FileName)
		require.NotNil(t, src.PageNumber)
		assert.Positive(t, *src.PageNumber)
		assert.NotEmpty(t, src.Excerpt)
	}
}

func TestServer_RefreshErrors(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.post(t, "/refresh", fmt.Sprintf(`{"pdf_dir":%q}`, filepath.Join(env.pdfDir, "missing")))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.post(t, "/refresh", `{"pdf_dir":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.manager.Ready())
}

func TestServer_QueryValidation(t *testing.T) {
	env := newTestEnv(t, true)
	require.Equal(t, http.StatusOK, env.post(t, "/refresh", "{}").StatusCode)

	tests := []struct {
		name string
		body string
	}{
		{"empty question", `{"question":"   "}`},
		{"malformed json", `{"question":`},
		{"empty body", ``},
		{"bad history pair", `{"question":"q","chat_history":[["only one"]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decode[errorResponse](t, resp).Detail, "invalid request")
		})
	}
}

func TestServer_QueryStream(t *testing.T) {
	env := newTestEnv(t, true)
	require.Equal(t, http.StatusOK, env.post(t, "/refresh", "{}").StatusCode)

	resp := env.post(t, "/query/stream", `{"question":"What are neural networks?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "data: Based ")
	assert.Contains(t, body, "data: [SOURCES] 4 documents\n\n")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), body)
	assert.NotContains(t, body, "[ERROR]")
}

func TestServer_QueryStreamFailsBeforeStreaming(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.post(t, "/query/stream", `{"question":"anything"}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_UploadNotImplemented(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.post(t, "/upload", "")

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, uploadNotImplemented, decode[errorResponse](t, resp).Detail)
}

func TestServer_Middleware(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.get(t, "/healthz")
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "fixed-id")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "fixed-id", resp.Header.Get(RequestIDHeader))

	req, err = http.NewRequest(http.MethodOptions, env.server.URL+"/query", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty", entities.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("dir: %w", entities.ErrNotFound), http.StatusNotFound},
		{entities.ErrConflict, http.StatusConflict},
		{entities.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{entities.ErrIndexNotFound, http.StatusServiceUnavailable},
		{entities.ErrIndexCorrupt, http.StatusServiceUnavailable},
		{&entities.ProviderError{Provider: "openai", Op: "embeddings", StatusCode: 500, Err: errors.New("boom")}, http.StatusInternalServerError},
		{fmt.Errorf("%w: x", entities.ErrGeneration), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
