package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
)

// multipart のヘッダー分の余裕
const multipartOverhead = 1 << 20

// handleUploadDocument は multipart の file フィールドを受け取り、同期的に取り込む
func (s *Server) handleUploadDocument(c *gin.Context) {
	workspaceID := c.Param("workspace_id")
	maxBytes := s.config.MaxUploadBytes

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, s.logger, apperr.NewValidationError("file", "exceeds the maximum upload size of %d bytes", maxBytes))
			return
		}
		respondError(c, s.logger, apperr.NewValidationError("file", "multipart field is required"))
		return
	}
	if fileHeader.Size > maxBytes {
		respondError(c, s.logger, apperr.NewValidationError("file", "exceeds the maximum upload size of %d bytes", maxBytes))
		return
	}

	metadata, err := parseMetadataField(c.PostForm("metadata"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, s.logger, fmt.Errorf("failed to open uploaded file: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, s.logger, fmt.Errorf("failed to read uploaded file: %w", err))
		return
	}

	doc, err := s.documents.Upload(c.Request.Context(), ingestion.UploadParams{
		WorkspaceID: workspaceID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		UploaderID:  userIDFrom(c),
		Metadata:    metadata,
	})
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusCreated, newDocumentResponse(doc))
}

// parseMetadataField は任意の metadata フォームフィールドを JSON オブジェクトとして解釈する
func parseMetadataField(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil || metadata == nil {
		return nil, apperr.NewValidationError("metadata", "must be a JSON object")
	}
	return metadata, nil
}

func (s *Server) handleListDocuments(c *gin.Context) {
	filter := ingestion.ListFilter{WorkspaceID: c.Param("workspace_id")}

	if raw := c.Query("status"); raw != "" {
		status, ok := ingestion.ParseStatus(raw)
		if !ok {
			respondError(c, s.logger, apperr.NewValidationError("status", "unknown status %q", raw))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("document_type"); raw != "" {
		kind, ok := format.Parse(raw)
		if !ok {
			respondError(c, s.logger, apperr.NewValidationError("document_type", "unknown document type %q", raw))
			return
		}
		filter.Kind = &kind
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, s.logger, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		respondError(c, s.logger, err)
		return
	}

	result, err := s.documents.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	docs := make([]documentResponse, 0, len(result.Documents))
	for _, doc := range result.Documents {
		docs = append(docs, newDocumentResponse(doc))
	}
	c.JSON(http.StatusOK, documentListResponse{
		Documents: docs,
		Total:     result.Total,
		Limit:     result.Limit,
		Offset:    result.Offset,
	})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.documents.Get(c.Request.Context(), c.Param("workspace_id"), c.Param("document_id"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) handleGetDocumentContent(c *gin.Context) {
	content, err := s.documents.GetContent(c.Request.Context(), c.Param("workspace_id"), c.Param("document_id"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newDocumentContentResponse(content))
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	documentID := c.Param("document_id")

	permanent := false
	if raw := c.Query("permanent"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, s.logger, apperr.NewValidationError("permanent", "must be a boolean"))
			return
		}
		permanent = v
	}

	if err := s.documents.Delete(c.Request.Context(), c.Param("workspace_id"), documentID, permanent); err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"document_id": documentID,
		"permanent":   permanent,
	})
}

// queryInt は整数のクエリパラメータを読む。未指定は 0
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.NewValidationError(key, "must be an integer")
	}
	return v, nil
}
