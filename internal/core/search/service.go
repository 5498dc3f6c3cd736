package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/shared/id"
)

// SearchService は検索のビジネスロジックを提供する
type SearchService struct {
	repo     Repository
	embedder Embedder
	recorder Recorder
	logger   *slog.Logger
}

type searchServiceOptions struct {
	recorder Recorder
	logger   *slog.Logger
}

// SearchServiceOption は SearchService のオプション設定
type SearchServiceOption func(*searchServiceOptions)

// WithSearchLogger は SearchService にロガーを設定する
func WithSearchLogger(logger *slog.Logger) SearchServiceOption {
	return func(o *searchServiceOptions) {
		o.logger = logger
	}
}

// WithSearchRecorder はメトリクスの記録先を設定する
func WithSearchRecorder(recorder Recorder) SearchServiceOption {
	return func(o *searchServiceOptions) {
		o.recorder = recorder
	}
}

// NewSearchService は新しいSearchServiceを作成する
func NewSearchService(repo Repository, embedder Embedder, opts ...SearchServiceOption) *SearchService {
	options := searchServiceOptions{
		recorder: noopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.recorder == nil {
		options.recorder = noopRecorder{}
	}

	return &SearchService{
		repo:     repo,
		embedder: embedder,
		recorder: options.recorder,
		logger:   options.logger,
	}
}

// Search はクエリに基づいてベクトル検索を実行し、検索履歴を1件追加する。
// 一致なしは空スライスを返し、エラーにはしない
func (s *SearchService) Search(ctx context.Context, params SearchParams) ([]*SearchResult, error) {
	query, err := normalizeParams(&params)
	if err != nil {
		return nil, err
	}

	// クエリをEmbeddingに変換
	queryVector, err := s.embedder.EmbedQuery(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	query.Vector = queryVector

	results, err := s.repo.SearchSimilar(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if results == nil {
		results = []*SearchResult{}
	}

	// 結果なしの場合 top_similarity は null
	var top any
	if len(results) > 0 {
		top = results[0].Similarity
	}

	record := &Record{
		ID:          id.NewSearch(),
		WorkspaceID: params.WorkspaceID,
		UserID:      params.UserID,
		Query:       params.Query,
		Metadata: map[string]any{
			"result_count":         len(results),
			"top_similarity":       top,
			"limit":                query.Limit,
			"similarity_threshold": query.Threshold,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSearchRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("検索履歴の保存に失敗: %w", err)
	}

	s.recorder.ObserveSearch(len(results))
	s.logger.Info("検索を実行",
		"workspace_id", params.WorkspaceID,
		"result_count", len(results),
		"limit", query.Limit,
		"threshold", query.Threshold,
	)

	return results, nil
}

func normalizeParams(params *SearchParams) (SimilarityQuery, error) {
	params.Query = strings.TrimSpace(params.Query)
	if params.Query == "" {
		return SimilarityQuery{}, apperr.NewValidationError("query", "is required")
	}
	if strings.TrimSpace(params.WorkspaceID) == "" {
		return SimilarityQuery{}, apperr.NewValidationError("workspace_id", "is required")
	}

	limit := params.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return SimilarityQuery{}, apperr.NewValidationError("limit", "must be between 1 and %d", MaxLimit)
	}

	threshold := DefaultSimilarityThreshold
	if params.SimilarityThreshold != nil {
		threshold = *params.SimilarityThreshold
	}
	if threshold < 0 || threshold > 1 {
		return SimilarityQuery{}, apperr.NewValidationError("similarity_threshold", "must be between 0 and 1")
	}

	return SimilarityQuery{
		WorkspaceID: params.WorkspaceID,
		Limit:       limit,
		Threshold:   threshold,
	}, nil
}

// History はワークスペースの検索履歴を新しい順に返す
func (s *SearchService) History(ctx context.Context, workspaceID string, limit int) ([]*Record, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, apperr.NewValidationError("workspace_id", "is required")
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, apperr.NewValidationError("limit", "must be between 1 and %d", MaxLimit)
	}

	records, err := s.repo.ListSearchRecords(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}
