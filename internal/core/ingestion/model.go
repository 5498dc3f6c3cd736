package ingestion

import (
	"maps"
	"time"

	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
)

// DocumentStatus はドキュメントのライフサイクル状態
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
	StatusDeleted    DocumentStatus = "deleted"
)

// ParseStatus は文字列を DocumentStatus に変換する
func ParseStatus(value string) (DocumentStatus, bool) {
	switch s := DocumentStatus(value); s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError, StatusDeleted:
		return s, true
	}
	return "", false
}

// Document はアップロードされた1つの成果物
type Document struct {
	ID           string
	WorkspaceID  string
	Filename     string
	Kind         format.Kind
	ContentType  string
	ByteSize     int64
	UploaderID   *string
	Status       DocumentStatus
	ErrorMessage *string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Chunk はドキュメントから切り出したテキストウィンドウ
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Embedding はチャンクに1対1で対応するベクトル
type Embedding struct {
	ID        string
	ChunkID   string
	Vector    []float32
	CreatedAt time.Time
}

// ListFilter はドキュメント一覧の条件。フィルタは AND で結合される
type ListFilter struct {
	WorkspaceID string
	Status      *DocumentStatus
	Kind        *format.Kind
	Limit       int
	Offset      int
}

// ListResult はページングされた一覧と、フィルタ適用後の総件数
type ListResult struct {
	Documents []*Document
	Total     int
	Limit     int
	Offset    int
}

// DocumentContent はドキュメントとその全チャンク
type DocumentContent struct {
	Document *Document
	Chunks   []*Chunk
}

// UploadParams はアップロード要求
type UploadParams struct {
	WorkspaceID string
	Filename    string
	ContentType string
	Data        []byte
	UploaderID  *string
	Metadata    map[string]any
}

// mergeMetadata は base に overlay を重ねた新しいマップを返す。キーが衝突した場合は overlay が優先される
func mergeMetadata(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	maps.Copy(merged, base)
	maps.Copy(merged, overlay)
	return merged
}
