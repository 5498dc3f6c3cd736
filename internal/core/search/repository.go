package search

import (
	"context"
)

// Repository は検索関連の全データアクセスを統合するインターフェース
type Repository interface {
	// SearchSimilar はワークスペース内の Completed ドキュメントのチャンクから、
	// 類似度が閾値を超えるものを類似度の降順で返す
	SearchSimilar(ctx context.Context, query SimilarityQuery) ([]*SearchResult, error)

	// CreateSearchRecord は検索履歴を追加する
	CreateSearchRecord(ctx context.Context, record *Record) error

	// ListSearchRecords はワークスペースの検索履歴を新しい順に返す
	ListSearchRecords(ctx context.Context, workspaceID string, limit int) ([]*Record, error)
}

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	// EmbedQuery は単一テキストのEmbeddingを生成する
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Recorder は検索メトリクスを記録する
type Recorder interface {
	ObserveSearch(resultCount int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveSearch(int) {}
