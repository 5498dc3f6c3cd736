package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"
)

// DocumentRepository は ingestion.Repository インターフェースを実装する PostgreSQL リポジトリです
type DocumentRepository struct {
	db DBTX
}

// NewDocumentRepository は新しい DocumentRepository を作成します
func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// コンパイル時の型チェック
var _ ingestion.Repository = (*DocumentRepository)(nil)

const documentColumns = `id, workspace_id, filename, document_type, content_type, file_size,
	uploaded_by_user_id, status, error_message, metadata, created_at, updated_at, deleted_at`

// === Document ===

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *ingestion.Document) error {
	metadata, err := MetadataToJSON(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		doc.ID,
		doc.WorkspaceID,
		doc.Filename,
		string(doc.Kind),
		doc.ContentType,
		doc.ByteSize,
		StringPtrToPgtext(doc.UploaderID),
		string(doc.Status),
		StringPtrToPgtext(doc.ErrorMessage),
		metadata,
		doc.CreatedAt,
		doc.UpdatedAt,
		TimePtrToPgtimestamptz(doc.DeletedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return &apperr.DuplicateError{WorkspaceID: doc.WorkspaceID, Filename: doc.Filename}
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, workspaceID, documentID string) (mo.Option[*ingestion.Document], error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE workspace_id = $1 AND id = $2`,
		workspaceID, documentID,
	)
	return scanOptionalDocument(row)
}

func (r *DocumentRepository) FindActiveDocumentByFilename(ctx context.Context, workspaceID, filename string) (mo.Option[*ingestion.Document], error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE workspace_id = $1 AND filename = $2 AND status <> 'deleted'
		LIMIT 1`,
		workspaceID, filename,
	)
	return scanOptionalDocument(row)
}

func (r *DocumentRepository) ListDocuments(ctx context.Context, filter ingestion.ListFilter) ([]*ingestion.Document, int, error) {
	conditions := []string{"workspace_id = $1", "status <> 'deleted'"}
	args := []any{filter.WorkspaceID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		conditions = append(conditions, fmt.Sprintf("document_type = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM documents
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, documentColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*ingestion.Document, 0, filter.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return docs, total, nil
}

// TransitionDocumentStatus は現在の状態が from に含まれる場合のみ状態を更新する
func (r *DocumentRepository) TransitionDocumentStatus(ctx context.Context, documentID string, from []ingestion.DocumentStatus, to ingestion.DocumentStatus, errorMessage *string) (bool, error) {
	states := make([]string, len(from))
	for i, status := range from {
		states[i] = string(status)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4::text[])`,
		documentID, string(to), StringPtrToPgtext(errorMessage), states,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update document status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepository) UpdateDocumentMetadata(ctx context.Context, documentID string, metadata map[string]any) error {
	data, err := MetadataToJSON(metadata)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET metadata = $2, updated_at = now()
		WHERE id = $1`,
		documentID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to update document metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFoundError("document", documentID)
	}
	return nil
}

func (r *DocumentRepository) CompleteDocument(ctx context.Context, documentID string, expectedChunks int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE documents d
		SET status = 'completed', error_message = NULL, updated_at = now()
		WHERE d.id = $1
		  AND d.status = 'processing'
		  AND $2::bigint > 0
		  AND (SELECT count(*) FROM document_chunks c WHERE c.document_id = d.id) = $2::bigint
		  AND (SELECT count(*)
		       FROM document_embeddings e
		       JOIN document_chunks c ON c.id = e.chunk_id
		       WHERE c.document_id = d.id) = $2::bigint`,
		documentID, int64(expectedChunks),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET status = 'deleted', deleted_at = now(), updated_at = now()
		WHERE workspace_id = $1 AND id = $2 AND status NOT IN ('deleted', 'processing')`,
		workspaceID, documentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to soft delete document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteDocument はドキュメントを物理削除する。チャンクと Embedding は外部キーの ON DELETE CASCADE で削除される
func (r *DocumentRepository) DeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE workspace_id = $1 AND id = $2`, workspaceID, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// === Chunk ===

// CreateChunks は全チャンクを1回のバッチで書き込む
func (r *DocumentRepository) CreateChunks(ctx context.Context, chunks []*ingestion.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadata, err := MetadataToJSON(c.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO document_chunks (id, document_id, chunk_index, content, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.DocumentID, c.Index, c.Content, metadata, c.CreatedAt,
		)
	}

	if err := r.execBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListChunks(ctx context.Context, documentID string) ([]*ingestion.Chunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, chunk_index, content, metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := []*ingestion.Chunk{}
	for rows.Next() {
		var (
			c        ingestion.Chunk
			metadata []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Metadata, err = JSONToMetadata(metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}

// === Embedding ===

func (r *DocumentRepository) CreateEmbeddings(ctx context.Context, embeddings []*ingestion.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range embeddings {
		batch.Queue(`
			INSERT INTO document_embeddings (id, chunk_id, embedding, created_at)
			VALUES ($1, $2, $3, $4)`,
			e.ID, e.ChunkID, pgvector.NewVector(e.Vector), e.CreatedAt,
		)
	}

	if err := r.execBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	return nil
}

func (r *DocumentRepository) execBatch(ctx context.Context, batch *pgx.Batch) error {
	results := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return results.Close()
}

// === scan helpers ===

func scanOptionalDocument(row pgx.Row) (mo.Option[*ingestion.Document], error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingestion.Document](), nil
		}
		return mo.None[*ingestion.Document](), err
	}
	return mo.Some(doc), nil
}

func scanDocument(row pgx.Row) (*ingestion.Document, error) {
	var (
		doc          ingestion.Document
		kind         string
		status       string
		uploaderID   pgtype.Text
		errorMessage pgtype.Text
		metadata     []byte
		deletedAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&doc.ID,
		&doc.WorkspaceID,
		&doc.Filename,
		&kind,
		&doc.ContentType,
		&doc.ByteSize,
		&uploaderID,
		&status,
		&errorMessage,
		&metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Kind = format.Kind(kind)
	doc.Status = ingestion.DocumentStatus(status)
	doc.UploaderID = PgtextToStringPtr(uploaderID)
	doc.ErrorMessage = PgtextToStringPtr(errorMessage)
	doc.DeletedAt = PgtimestamptzToTimePtr(deletedAt)
	if doc.Metadata, err = JSONToMetadata(metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}
