package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/knowledge-rag/internal/core/embedding"
	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/chunk"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/extract"
	"github.com/jinford/knowledge-rag/internal/core/search"
	"github.com/jinford/knowledge-rag/internal/infra/openai"
	"github.com/jinford/knowledge-rag/internal/infra/postgres"
	"github.com/jinford/knowledge-rag/internal/platform/config"
	"github.com/jinford/knowledge-rag/internal/platform/database"
	"github.com/jinford/knowledge-rag/internal/platform/metrics"
)

// ServiceContainer はアプリケーションの依存関係を保持する。
type ServiceContainer struct {
	DocumentService *ingestion.Service
	SearchService   *search.SearchService
	SearchTool      *search.DocumentSearchTool
	Batcher         *embedding.Batcher
	Metrics         *metrics.Manager

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger       *slog.Logger
	provider     embedding.Provider
	tokenCounter chunk.TokenCounter
	metrics      *metrics.Manager
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerProvider はカスタム Embedding プロバイダを注入する
func WithContainerProvider(provider embedding.Provider) ContainerOption {
	return func(opts *containerOptions) {
		opts.provider = provider
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter chunk.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// WithContainerMetrics はメトリクスマネージャを差し替える
func WithContainerMetrics(m *metrics.Manager) ContainerOption {
	return func(opts *containerOptions) {
		opts.metrics = m
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
func NewContainerWithDB(cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = metrics.NewManager(metrics.DefaultNamespace)
	}

	// Embedding プロバイダ (OpenAI)
	provider := options.provider
	if provider == nil {
		provider = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
		)
	}
	batcher := embedding.NewBatcher(
		provider,
		embedding.WithBatchSize(cfg.Ingestion.EmbeddingBatchSize),
		embedding.WithBatcherLogger(options.logger),
	)

	// Splitter / TokenCounter
	var splitterOpts []chunk.SplitterOption
	tokenCounter := options.tokenCounter
	if tokenCounter == nil {
		counter, err := chunk.NewTiktokenCounter()
		if err != nil {
			// token_count はメタデータのみに使うため、取得できなくても継続する
			options.logger.Warn("TokenCounter を初期化できませんでした。token_count は記録されません", "error", err)
		} else {
			tokenCounter = counter
		}
	}
	if tokenCounter != nil {
		splitterOpts = append(splitterOpts, chunk.WithTokenCounter(tokenCounter))
	}
	splitter, err := chunk.NewSplitter(chunk.Config{
		Size:    cfg.Ingestion.ChunkSize,
		Overlap: cfg.Ingestion.ChunkOverlap,
	}, splitterOpts...)
	if err != nil {
		return nil, fmt.Errorf("Splitter 初期化に失敗しました: %w", err)
	}

	// Repository (PostgreSQL)
	documentRepo := postgres.NewDocumentRepository(db.Pool)
	searchRepo := postgres.NewSearchRepository(db.Pool)

	documentService := ingestion.NewService(
		documentRepo,
		extract.New(),
		splitter,
		batcher,
		ingestion.WithIngestionLogger(options.logger),
		ingestion.WithTransactor(database.NewTransactionProvider(db.Pool)),
		ingestion.WithRecorder(options.metrics),
	)

	searchService := search.NewSearchService(
		searchRepo,
		batcher,
		search.WithSearchLogger(options.logger),
		search.WithSearchRecorder(options.metrics),
	)

	searchTool := search.NewDocumentSearchTool(
		searchService,
		search.WithContextBuilder(search.NewContextBuilder(search.DefaultContextTokens, tokenCounter)),
	)

	return &ServiceContainer{
		DocumentService: documentService,
		SearchService:   searchService,
		SearchTool:      searchTool,
		Batcher:         batcher,
		Metrics:         options.metrics,
		logger:          options.logger,
		database:        db,
	}, nil
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す。
func (c *ServiceContainer) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}
