package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/jinford/knowledge-rag/internal/core/search"
)

type documentResponse struct {
	ID               string                   `json:"id"`
	WorkspaceID      string                   `json:"workspace_id"`
	Filename         string                   `json:"filename"`
	DocumentType     format.Kind              `json:"document_type"`
	ContentType      string                   `json:"content_type"`
	FileSize         int64                    `json:"file_size"`
	UploadedByUserID *string                  `json:"uploaded_by_user_id,omitempty"`
	Status           ingestion.DocumentStatus `json:"status"`
	ErrorMessage     *string                  `json:"error_message,omitempty"`
	Metadata         map[string]any           `json:"metadata"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
	DeletedAt        *time.Time               `json:"deleted_at,omitempty"`
}

func newDocumentResponse(doc *ingestion.Document) documentResponse {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return documentResponse{
		ID:               doc.ID,
		WorkspaceID:      doc.WorkspaceID,
		Filename:         doc.Filename,
		DocumentType:     doc.Kind,
		ContentType:      doc.ContentType,
		FileSize:         doc.ByteSize,
		UploadedByUserID: doc.UploaderID,
		Status:           doc.Status,
		ErrorMessage:     doc.ErrorMessage,
		Metadata:         metadata,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		DeletedAt:        doc.DeletedAt,
	}
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

type chunkResponse struct {
	ChunkID  string         `json:"chunk_id"`
	Index    int            `json:"index"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type documentContentResponse struct {
	DocumentID   string          `json:"document_id"`
	Filename     string          `json:"filename"`
	DocumentType format.Kind     `json:"document_type"`
	Metadata     map[string]any  `json:"metadata"`
	Chunks       []chunkResponse `json:"chunks"`
}

func newDocumentContentResponse(content *ingestion.DocumentContent) documentContentResponse {
	chunks := make([]chunkResponse, 0, len(content.Chunks))
	for _, c := range content.Chunks {
		chunks = append(chunks, chunkResponse{
			ChunkID:  c.ID,
			Index:    c.Index,
			Content:  c.Content,
			Metadata: c.Metadata,
		})
	}
	metadata := content.Document.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return documentContentResponse{
		DocumentID:   content.Document.ID,
		Filename:     content.Document.Filename,
		DocumentType: content.Document.Kind,
		Metadata:     metadata,
		Chunks:       chunks,
	}
}

type searchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Query   string                 `json:"query"`
}

type searchHistoryItem struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

type searchHistoryResponse struct {
	Searches []searchHistoryItem `json:"searches"`
}

// statusFor はエラーコードをHTTPステータスに対応付ける
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation, apperr.CodeExtraction:
		return http.StatusBadRequest
	case apperr.CodeDuplicate:
		return http.StatusConflict
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeEmbeddingProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError はエラーレスポンスを返す。5xx の詳細はログにのみ出力する
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)

	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		message = "internal server error"
	case http.StatusBadGateway:
		message = "embedding provider request failed"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("リクエストの処理に失敗",
			"error", err,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(ctxKeyRequestID),
		)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
