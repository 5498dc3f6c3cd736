package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/search"
	"github.com/jinford/knowledge-rag/internal/platform/metrics"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// DocumentService はドキュメント操作のポート
type DocumentService interface {
	Upload(ctx context.Context, params ingestion.UploadParams) (*ingestion.Document, error)
	Get(ctx context.Context, workspaceID, documentID string) (*ingestion.Document, error)
	List(ctx context.Context, filter ingestion.ListFilter) (*ingestion.ListResult, error)
	GetContent(ctx context.Context, workspaceID, documentID string) (*ingestion.DocumentContent, error)
	Delete(ctx context.Context, workspaceID, documentID string, permanent bool) error
}

// SearchService は検索のポート
type SearchService interface {
	Search(ctx context.Context, params search.SearchParams) ([]*search.SearchResult, error)
	History(ctx context.Context, workspaceID string, limit int) ([]*search.Record, error)
}

// HealthChecker は依存先の疎通確認
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config はHTTPサーバー設定
type Config struct {
	Addr           string
	MaxUploadBytes int64
}

// Server は REST API を提供する
type Server struct {
	config    Config
	engine    *gin.Engine
	documents DocumentService
	searches  SearchService
	health    HealthChecker
	metrics   *metrics.Manager
	logger    *slog.Logger
}

// ServerOption は Server のオプション
type ServerOption func(*Server)

// WithServerLogger はロガーを設定する
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics は Prometheus メトリクスを有効にする
func WithMetrics(m *metrics.Manager) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthChecker は /healthz で疎通確認する依存先を設定する
func WithHealthChecker(h HealthChecker) ServerOption {
	return func(s *Server) {
		s.health = h
	}
}

// NewServer は新しい Server を作成する
func NewServer(cfg Config, documents DocumentService, searches SearchService, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		documents: documents,
		searches:  searches,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.config.MaxUploadBytes <= 0 {
		s.config.MaxUploadBytes = 50 << 20
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), loggingMiddleware(s.logger))
	if s.metrics != nil {
		engine.Use(s.metrics.Middleware())
	}
	s.engine = engine
	s.registerRoutes()

	return s
}

// Handler は http.Handler を返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run はサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", s.metrics.Handler())
	}

	kb := s.engine.Group("/api/v1/workspaces/:workspace_id/knowledge")
	{
		kb.POST("/documents", s.handleUploadDocument)
		kb.GET("/documents", s.handleListDocuments)
		kb.GET("/documents/:document_id", s.handleGetDocument)
		kb.GET("/documents/:document_id/content", s.handleGetDocumentContent)
		kb.DELETE("/documents/:document_id", s.handleDeleteDocument)

		kb.POST("/search", s.handleSearch)
		kb.POST("/search-form", s.handleSearchForm)
		kb.GET("/search-history", s.handleSearchHistory)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("ヘルスチェックに失敗", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
