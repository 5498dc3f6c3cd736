package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/jinford/knowledge-rag/internal/core/search"
	"github.com/jinford/knowledge-rag/internal/platform/metrics"
)

const basePath = "/api/v1/workspaces/ws1/knowledge"

type stubDocuments struct {
	uploaded   *ingestion.UploadParams
	uploadErr  error
	listFilter *ingestion.ListFilter
	listErr    error
	getErr     error
	deleted    []bool
	deleteErr  error
	content    *ingestion.DocumentContent
}

func (s *stubDocuments) Upload(_ context.Context, params ingestion.UploadParams) (*ingestion.Document, error) {
	s.uploaded = &params
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return &ingestion.Document{
		ID:          "doc_1",
		WorkspaceID: params.WorkspaceID,
		Filename:    params.Filename,
		Kind:        format.Detect(params.Filename),
		ContentType: params.ContentType,
		ByteSize:    int64(len(params.Data)),
		UploaderID:  params.UploaderID,
		Status:      ingestion.StatusCompleted,
		Metadata:    params.Metadata,
	}, nil
}

func (s *stubDocuments) Get(_ context.Context, workspaceID, documentID string) (*ingestion.Document, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &ingestion.Document{ID: documentID, WorkspaceID: workspaceID, Filename: "a.txt", Kind: format.KindTXT, Status: ingestion.StatusDeleted}, nil
}

func (s *stubDocuments) List(_ context.Context, filter ingestion.ListFilter) (*ingestion.ListResult, error) {
	s.listFilter = &filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &ingestion.ListResult{
		Documents: []*ingestion.Document{{ID: "doc_1", WorkspaceID: filter.WorkspaceID, Filename: "a.txt", Kind: format.KindTXT, Status: ingestion.StatusCompleted}},
		Total:     7,
		Limit:     100,
		Offset:    filter.Offset,
	}, nil
}

func (s *stubDocuments) GetContent(_ context.Context, _, _ string) (*ingestion.DocumentContent, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.content, nil
}

func (s *stubDocuments) Delete(_ context.Context, _, _ string, permanent bool) error {
	s.deleted = append(s.deleted, permanent)
	return s.deleteErr
}

type stubSearches struct {
	params       *search.SearchParams
	results      []*search.SearchResult
	err          error
	historyLimit int
	records      []*search.Record
}

func (s *stubSearches) Search(_ context.Context, params search.SearchParams) ([]*search.SearchResult, error) {
	s.params = &params
	return s.results, s.err
}

func (s *stubSearches) History(_ context.Context, _ string, limit int) ([]*search.Record, error) {
	s.historyLimit = limit
	return s.records, s.err
}

type stubHealth struct{ err error }

func (h stubHealth) Ping(context.Context) error { return h.err }

func newTestServer(t *testing.T, docs *stubDocuments, searches *stubSearches, opts ...ServerOption) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts = append([]ServerOption{WithServerLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewServer(Config{Addr: ":0", MaxUploadBytes: 64}, docs, searches, opts...).Handler()
}

func multipartBody(t *testing.T, filename string, content []byte, metadata string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if metadata != "" {
		require.NoError(t, w.WriteField("metadata", metadata))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	return errBody["code"].(string)
}

func TestUploadDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		docs := &stubDocuments{}
		handler := newTestServer(t, docs, &stubSearches{})

		body, contentType := multipartBody(t, "notes.txt", []byte("hello"), `{"team":"docs"}`)
		req := httptest.NewRequest(http.MethodPost, basePath+"/documents", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", "user-9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "doc_1", resp["id"])
		assert.Equal(t, "txt", resp["document_type"])
		assert.Equal(t, float64(5), resp["file_size"])
		assert.Equal(t, "completed", resp["status"])
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

		require.NotNil(t, docs.uploaded)
		assert.Equal(t, "ws1", docs.uploaded.WorkspaceID)
		assert.Equal(t, []byte("hello"), docs.uploaded.Data)
		assert.Equal(t, map[string]any{"team": "docs"}, docs.uploaded.Metadata)
		require.NotNil(t, docs.uploaded.UploaderID)
		assert.Equal(t, "user-9", *docs.uploaded.UploaderID)
	})

	t.Run("invalid metadata", func(t *testing.T) {
		docs := &stubDocuments{}
		handler := newTestServer(t, docs, &stubSearches{})

		body, contentType := multipartBody(t, "notes.txt", []byte("hello"), `[1,2]`)
		req := httptest.NewRequest(http.MethodPost, basePath+"/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", errorCode(t, rec))
		assert.Nil(t, docs.uploaded)
	})

	t.Run("missing file", func(t *testing.T) {
		handler := newTestServer(t, &stubDocuments{}, &stubSearches{})

		body, contentType := multipartBody(t, "", nil, `{"a":1}`)
		req := httptest.NewRequest(http.MethodPost, basePath+"/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		docs := &stubDocuments{}
		handler := newTestServer(t, docs, &stubSearches{})

		body, contentType := multipartBody(t, "big.txt", bytes.Repeat([]byte("x"), 65), "")
		req := httptest.NewRequest(http.MethodPost, basePath+"/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, docs.uploaded)
	})

	t.Run("duplicate", func(t *testing.T) {
		docs := &stubDocuments{uploadErr: &apperr.DuplicateError{WorkspaceID: "ws1", Filename: "notes.txt"}}
		handler := newTestServer(t, docs, &stubSearches{})

		body, contentType := multipartBody(t, "notes.txt", []byte("hello"), "")
		req := httptest.NewRequest(http.MethodPost, basePath+"/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "duplicate", errorCode(t, rec))
	})

	t.Run("storage failure hides internals", func(t *testing.T) {
		docs := &stubDocuments{uploadErr: errors.New("connection refused")}
		handler := newTestServer(t, docs, &stubSearches{})

		body, contentType := multipartBody(t, "notes.txt", []byte("hello"), "")
		req := httptest.NewRequest(http.MethodPost, basePath+"/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.Equal(t, "internal_error", errorCode(t, rec))
	})
}

func TestListDocuments(t *testing.T) {
	t.Run("filters", func(t *testing.T) {
		docs := &stubDocuments{}
		handler := newTestServer(t, docs, &stubSearches{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/documents?status=completed&document_type=pdf&limit=5&offset=10", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, docs.listFilter)
		assert.Equal(t, "ws1", docs.listFilter.WorkspaceID)
		assert.Equal(t, ingestion.StatusCompleted, *docs.listFilter.Status)
		assert.Equal(t, format.KindPDF, *docs.listFilter.Kind)
		assert.Equal(t, 5, docs.listFilter.Limit)
		assert.Equal(t, 10, docs.listFilter.Offset)

		resp := decode(t, rec)
		assert.Equal(t, float64(7), resp["total"])
		assert.Len(t, resp["documents"], 1)
	})

	t.Run("invalid query", func(t *testing.T) {
		for _, query := range []string{"status=archived", "document_type=exe", "limit=ten", "offset=x"} {
			docs := &stubDocuments{}
			handler := newTestServer(t, docs, &stubSearches{})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/documents?"+query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code, query)
			assert.Nil(t, docs.listFilter, query)
		}
	})

	t.Run("service validation", func(t *testing.T) {
		docs := &stubDocuments{listErr: apperr.NewValidationError("limit", "must be between 1 and 100")}
		handler := newTestServer(t, docs, &stubSearches{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/documents?limit=500", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetDocument(t *testing.T) {
	handler := newTestServer(t, &stubDocuments{}, &stubSearches{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/documents/doc_9", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "doc_9", resp["id"])
	assert.Equal(t, "deleted", resp["status"])

	handler = newTestServer(t, &stubDocuments{getErr: apperr.NewNotFoundError("document", "doc_9")}, &stubSearches{})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/documents/doc_9", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestGetDocumentContent(t *testing.T) {
	docs := &stubDocuments{content: &ingestion.DocumentContent{
		Document: &ingestion.Document{ID: "doc_1", Filename: "a.md", Kind: format.KindMD, Metadata: map[string]any{"line_count": 2}},
		Chunks: []*ingestion.Chunk{
			{ID: "chk_1", Index: 0, Content: "first", Metadata: map[string]any{"start_char": 0}},
			{ID: "chk_2", Index: 1, Content: "second", Metadata: map[string]any{"start_char": 5}},
		},
	}}
	handler := newTestServer(t, docs, &stubSearches{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/documents/doc_1/content", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "doc_1", resp["document_id"])
	assert.Equal(t, "md", resp["document_type"])
	chunks := resp["chunks"].([]any)
	require.Len(t, chunks, 2)
	assert.Equal(t, "chk_2", chunks[1].(map[string]any)["chunk_id"])
	assert.Equal(t, float64(1), chunks[1].(map[string]any)["index"])
}

func TestDeleteDocument(t *testing.T) {
	docs := &stubDocuments{}
	handler := newTestServer(t, docs, &stubSearches{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, basePath+"/documents/doc_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["permanent"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, basePath+"/documents/doc_1?permanent=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "doc_1", resp["document_id"])
	assert.Equal(t, true, resp["permanent"])

	assert.Equal(t, []bool{false, true}, docs.deleted)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, basePath+"/documents/doc_1?permanent=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	docs.deleteErr = apperr.NewNotFoundError("document", "doc_1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, basePath+"/documents/doc_1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	results := []*search.SearchResult{{
		ChunkID:      "chk_1",
		Content:      "pgvector stores embeddings",
		DocumentID:   "doc_1",
		Filename:     "a.txt",
		DocumentKind: format.KindTXT,
		Similarity:   0.91,
	}}

	t.Run("json", func(t *testing.T) {
		searches := &stubSearches{results: results}
		handler := newTestServer(t, &stubDocuments{}, searches)

		req := httptest.NewRequest(http.MethodPost, basePath+"/search", strings.NewReader(`{"query":"vectors","limit":3,"similarity_threshold":0.5}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "vectors", resp["query"])
		require.Len(t, resp["results"], 1)
		first := resp["results"].([]any)[0].(map[string]any)
		assert.Equal(t, "chk_1", first["chunk_id"])
		assert.Equal(t, "txt", first["document_type"])

		require.NotNil(t, searches.params)
		assert.Equal(t, "ws1", searches.params.WorkspaceID)
		assert.Equal(t, 3, searches.params.Limit)
		require.NotNil(t, searches.params.SimilarityThreshold)
		assert.InDelta(t, 0.5, *searches.params.SimilarityThreshold, 1e-9)
		assert.Equal(t, "user-1", *searches.params.UserID)
	})

	t.Run("form", func(t *testing.T) {
		searches := &stubSearches{}
		handler := newTestServer(t, &stubDocuments{}, searches)

		form := url.Values{"query": {"vectors"}, "limit": {"4"}}
		req := httptest.NewRequest(http.MethodPost, basePath+"/search-form", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 4, searches.params.Limit)
		assert.Nil(t, searches.params.SimilarityThreshold)
		assert.Equal(t, []any{}, decode(t, rec)["results"])
	})

	t.Run("malformed json", func(t *testing.T) {
		searches := &stubSearches{}
		handler := newTestServer(t, &stubDocuments{}, searches)

		req := httptest.NewRequest(http.MethodPost, basePath+"/search", strings.NewReader(`{"query":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, searches.params)
	})

	t.Run("provider failure", func(t *testing.T) {
		searches := &stubSearches{err: &apperr.EmbeddingProviderError{Batch: 0, Err: errors.New("rate limited")}}
		handler := newTestServer(t, &stubDocuments{}, searches)

		req := httptest.NewRequest(http.MethodPost, basePath+"/search", strings.NewReader(`{"query":"q"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "embedding_provider_error", errorCode(t, rec))
	})
}

func TestSearchHistory(t *testing.T) {
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	searches := &stubSearches{records: []*search.Record{
		{ID: "srch_1", Query: "q", CreatedAt: createdAt, Metadata: map[string]any{"result_count": 0, "top_similarity": nil}},
	}}
	handler := newTestServer(t, &stubDocuments{}, searches)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, basePath+"/search-history?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, searches.historyLimit)
	items := decode(t, rec)["searches"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "srch_1", item["id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", item["created_at"])
	assert.Contains(t, item["metadata"], "top_similarity")
}

func TestHealthAndMetrics(t *testing.T) {
	handler := newTestServer(t, &stubDocuments{}, &stubSearches{},
		WithHealthChecker(stubHealth{}),
		WithMetrics(metrics.NewManager("")),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "knowledge_rag_http_requests_total")

	handler = newTestServer(t, &stubDocuments{}, &stubSearches{}, WithHealthChecker(stubHealth{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperr.CodeValidation))
	assert.Equal(t, http.StatusConflict, statusFor(apperr.CodeDuplicate))
	assert.Equal(t, http.StatusNotFound, statusFor(apperr.CodeNotFound))
	assert.Equal(t, http.StatusBadGateway, statusFor(apperr.CodeEmbeddingProvider))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperr.CodeInternal))
}
