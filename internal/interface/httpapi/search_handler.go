package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/search"
)

type searchRequest struct {
	Query               string   `json:"query" form:"query"`
	Limit               int      `json:"limit" form:"limit"`
	SimilarityThreshold *float64 `json:"similarity_threshold" form:"similarity_threshold"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, s.logger, apperr.NewValidationError("body", "invalid JSON request: %v", err))
		return
	}
	s.runSearch(c, req)
}

func (s *Server) handleSearchForm(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindWith(&req, binding.Form); err != nil {
		respondError(c, s.logger, apperr.NewValidationError("body", "invalid form request: %v", err))
		return
	}
	s.runSearch(c, req)
}

func (s *Server) runSearch(c *gin.Context, req searchRequest) {
	results, err := s.searches.Search(c.Request.Context(), search.SearchParams{
		WorkspaceID:         c.Param("workspace_id"),
		UserID:              userIDFrom(c),
		Query:               req.Query,
		Limit:               req.Limit,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	if results == nil {
		results = []*search.SearchResult{}
	}

	c.JSON(http.StatusOK, searchResponse{Results: results, Query: req.Query})
}

func (s *Server) handleSearchHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	records, err := s.searches.History(c.Request.Context(), c.Param("workspace_id"), limit)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	items := make([]searchHistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, searchHistoryItem{
			ID:        r.ID,
			Query:     r.Query,
			CreatedAt: r.CreatedAt,
			Metadata:  r.Metadata,
		})
	}
	c.JSON(http.StatusOK, searchHistoryResponse{Searches: items})
}
