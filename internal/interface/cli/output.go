package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/search"
)

// renderDocumentsTable はテーブル形式でドキュメント一覧を表示します
func renderDocumentsTable(w io.Writer, docs []*ingestion.Document) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Filename", "Type", "Size", "Status", "Created At")

	for _, doc := range docs {
		table.Append(
			doc.ID,
			truncateString(doc.Filename, 40),
			string(doc.Kind),
			fmt.Sprintf("%d", doc.ByteSize),
			string(doc.Status),
			doc.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
}

// renderDocumentDetail はドキュメントの詳細を表示します
func renderDocumentDetail(w io.Writer, doc *ingestion.Document) {
	fmt.Fprintf(w, "\n=== ドキュメント詳細 ===\n\n")
	fmt.Fprintf(w, "ID:            %s\n", doc.ID)
	fmt.Fprintf(w, "Workspace:     %s\n", doc.WorkspaceID)
	fmt.Fprintf(w, "Filename:      %s\n", doc.Filename)
	fmt.Fprintf(w, "Type:          %s\n", doc.Kind)
	fmt.Fprintf(w, "Content-Type:  %s\n", doc.ContentType)
	fmt.Fprintf(w, "Size:          %d bytes\n", doc.ByteSize)
	fmt.Fprintf(w, "Status:        %s\n", doc.Status)
	if doc.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:         %s\n", *doc.ErrorMessage)
	}
	if doc.UploaderID != nil {
		fmt.Fprintf(w, "Uploaded By:   %s\n", *doc.UploaderID)
	}
	fmt.Fprintf(w, "Created At:    %s\n", doc.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated At:    %s\n", doc.UpdatedAt.Format(time.RFC3339))
	if doc.DeletedAt != nil {
		fmt.Fprintf(w, "Deleted At:    %s\n", doc.DeletedAt.Format(time.RFC3339))
	}

	if len(doc.Metadata) > 0 {
		fmt.Fprintf(w, "\nメタデータ:\n")
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, doc.Metadata[k])
		}
	}
	fmt.Fprintln(w)
}

// renderDocumentContent はチャンクを順に表示します
func renderDocumentContent(w io.Writer, content *ingestion.DocumentContent) {
	fmt.Fprintf(w, "%s (%s) - %d chunks\n", content.Document.Filename, content.Document.Kind, len(content.Chunks))
	for _, chunk := range content.Chunks {
		fmt.Fprintf(w, "\n--- chunk %d [%v, %v) ---\n", chunk.Index, chunk.Metadata["start_char"], chunk.Metadata["end_char"])
		fmt.Fprintln(w, chunk.Content)
	}
}

// renderSearchResults はテーブル形式で検索結果を表示します
func renderSearchResults(w io.Writer, results []*search.SearchResult) {
	table := tablewriter.NewWriter(w)
	table.Header("Similarity", "Filename", "Chunk", "Content")

	for _, r := range results {
		table.Append(
			fmt.Sprintf("%.4f", r.Similarity),
			truncateString(r.Filename, 30),
			r.ChunkID,
			truncateString(singleLine(r.Content), 60),
		)
	}

	table.Render()
}

// renderSearchHistory はテーブル形式で検索履歴を表示します
func renderSearchHistory(w io.Writer, records []*search.Record) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Query", "Results", "Top Similarity", "Created At")

	for _, r := range records {
		top := "-"
		if v, ok := r.Metadata["top_similarity"].(float64); ok {
			top = fmt.Sprintf("%.4f", v)
		}
		table.Append(
			r.ID,
			truncateString(r.Query, 40),
			fmt.Sprintf("%v", r.Metadata["result_count"]),
			top,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	table.Render()
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
