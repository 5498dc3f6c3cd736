package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/jinford/knowledge-rag/internal/core/search"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "日本語の...", truncateString("日本語のファイル名です", 7))
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "a b c", singleLine("a\n  b\tc "))
}

func TestRenderDocumentDetail(t *testing.T) {
	msg := "invalid JSON file: unexpected end of JSON input"
	doc := &ingestion.Document{
		ID:           "doc_1",
		WorkspaceID:  "ws1",
		Filename:     "broken.json",
		Kind:         format.KindJSON,
		Status:       ingestion.StatusError,
		ErrorMessage: &msg,
		Metadata:     map[string]any{"b": 2, "a": 1},
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	renderDocumentDetail(&buf, doc)

	out := buf.String()
	assert.Contains(t, out, "broken.json")
	assert.Contains(t, out, msg)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("  a: 1")), bytes.Index(buf.Bytes(), []byte("  b: 2")))
}

func TestRenderTables(t *testing.T) {
	var buf bytes.Buffer
	renderDocumentsTable(&buf, []*ingestion.Document{{ID: "doc_1", Filename: "a.pdf", Kind: format.KindPDF, Status: ingestion.StatusCompleted}})
	assert.Contains(t, buf.String(), "doc_1")
	assert.Contains(t, buf.String(), "a.pdf")

	buf.Reset()
	renderSearchResults(&buf, []*search.SearchResult{{ChunkID: "chk_1", Filename: "a.pdf", Content: "line one\nline two", Similarity: 0.8123}})
	assert.Contains(t, buf.String(), "0.8123")
	assert.Contains(t, buf.String(), "line one line two")

	buf.Reset()
	renderSearchHistory(&buf, []*search.Record{
		{ID: "srch_1", Query: "q1", Metadata: map[string]any{"result_count": 0, "top_similarity": nil}},
		{ID: "srch_2", Query: "q2", Metadata: map[string]any{"result_count": 2, "top_similarity": 0.75}},
	})
	assert.Contains(t, buf.String(), "srch_1")
	assert.Contains(t, buf.String(), "0.7500")
}

func TestRenderDocumentContent(t *testing.T) {
	var buf bytes.Buffer
	renderDocumentContent(&buf, &ingestion.DocumentContent{
		Document: &ingestion.Document{Filename: "a.txt", Kind: format.KindTXT},
		Chunks: []*ingestion.Chunk{
			{Index: 0, Content: "hello", Metadata: map[string]any{"start_char": 0, "end_char": 5}},
		},
	})
	assert.Contains(t, buf.String(), "a.txt (txt) - 1 chunks")
	assert.Contains(t, buf.String(), "--- chunk 0 [0, 5) ---")
}
