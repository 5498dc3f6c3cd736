package search

import (
	"time"

	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
)

const (
	// DefaultLimit は検索結果のデフォルト件数
	DefaultLimit = 10
	// MaxLimit は検索結果の最大件数
	MaxLimit = 100
	// DefaultSimilarityThreshold は類似度の下限（この値を超えるもののみ返す）
	DefaultSimilarityThreshold = 0.7
	// DefaultHistoryLimit は検索履歴のデフォルト件数
	DefaultHistoryLimit = 20
)

// SearchResult はベクトル検索の結果を表す
type SearchResult struct {
	ChunkID          string         `json:"chunk_id"`
	Content          string         `json:"content"`
	ChunkMetadata    map[string]any `json:"chunk_metadata"`
	DocumentID       string         `json:"document_id"`
	Filename         string         `json:"filename"`
	DocumentKind     format.Kind    `json:"document_type"`
	DocumentMetadata map[string]any `json:"document_metadata"`
	Similarity       float64        `json:"similarity"`
}

// SearchParams は検索パラメータを表す
type SearchParams struct {
	WorkspaceID string
	UserID      *string
	Query       string
	// Limit が 0 の場合は DefaultLimit
	Limit int
	// SimilarityThreshold が nil の場合は DefaultSimilarityThreshold
	SimilarityThreshold *float64
}

// SimilarityQuery はリポジトリへ渡す検索条件
type SimilarityQuery struct {
	WorkspaceID string
	Vector      []float32
	Limit       int
	Threshold   float64
}

// Record は1回の類似検索の監査ログ。書き込み後は変更されない
type Record struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	UserID      *string        `json:"user_id,omitempty"`
	Query       string         `json:"query"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}
