package ingestion

import (
	"context"
	"time"

	"github.com/jinford/knowledge-rag/internal/core/ingestion/extract"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/samber/mo"
)

// Repository はドキュメント関連の全データアクセスを統合するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// Document
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, workspaceID, documentID string) (mo.Option[*Document], error)
	FindActiveDocumentByFilename(ctx context.Context, workspaceID, filename string) (mo.Option[*Document], error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]*Document, int, error)
	// TransitionDocumentStatus は現在の状態が from のいずれかの場合のみ to に遷移させ、遷移したかを返す
	TransitionDocumentStatus(ctx context.Context, documentID string, from []DocumentStatus, to DocumentStatus, errorMessage *string) (bool, error)
	UpdateDocumentMetadata(ctx context.Context, documentID string, metadata map[string]any) error
	// CompleteDocument は Processing 状態かつチャンク数とEmbedding数がともに expectedChunks の場合のみ Completed にする
	CompleteDocument(ctx context.Context, documentID string, expectedChunks int) (bool, error)
	SoftDeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error)
	DeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error)

	// Chunk
	CreateChunks(ctx context.Context, chunks []*Chunk) error
	ListChunks(ctx context.Context, documentID string) ([]*Chunk, error)

	// Embedding
	CreateEmbeddings(ctx context.Context, embeddings []*Embedding) error
}

// Transactor は複数の書き込みを1トランザクションで実行する
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(repo Repository) error) error
}

// Extractor はテキスト抽出のポート
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind format.Kind, filename string) (*extract.Result, error)
}

// Embedder は Embedding Batcher のポート
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Recorder はインジェスト結果のメトリクスを記録する
type Recorder interface {
	ObserveIngestion(status DocumentStatus, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveIngestion(DocumentStatus, time.Duration) {}
