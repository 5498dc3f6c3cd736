package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/jinford/knowledge-rag/internal/core/search"
	pgvector "github.com/pgvector/pgvector-go"
)

// SearchRepository は search.Repository インターフェースを実装する PostgreSQL リポジトリです
type SearchRepository struct {
	db DBTX
}

// NewSearchRepository は新しい SearchRepository を作成します
func NewSearchRepository(db DBTX) *SearchRepository {
	return &SearchRepository{db: db}
}

// コンパイル時の型チェック
var _ search.Repository = (*SearchRepository)(nil)

// SearchSimilar はコサイン距離演算子 (<=>) で類似度 1 - distance を計算する。
// 距離の昇順（類似度の降順）に並べ、同値はチャンクの新しい順とする
func (r *SearchRepository) SearchSimilar(ctx context.Context, query search.SimilarityQuery) ([]*search.SearchResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			c.id,
			c.content,
			c.metadata,
			d.id,
			d.filename,
			d.document_type,
			d.metadata,
			1 - (e.embedding <=> $1) AS similarity
		FROM document_embeddings e
		JOIN document_chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.workspace_id = $2
		  AND d.status = 'completed'
		  AND 1 - (e.embedding <=> $1) > $3
		ORDER BY e.embedding <=> $1, c.created_at DESC, c.id
		LIMIT $4`,
		pgvector.NewVector(query.Vector),
		query.WorkspaceID,
		query.Threshold,
		query.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*search.SearchResult, 0, query.Limit)
	for rows.Next() {
		var (
			res              search.SearchResult
			chunkMetadata    []byte
			documentMetadata []byte
			kind             string
		)
		if err := rows.Scan(
			&res.ChunkID,
			&res.Content,
			&chunkMetadata,
			&res.DocumentID,
			&res.Filename,
			&kind,
			&documentMetadata,
			&res.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		res.DocumentKind = format.Kind(kind)
		if res.ChunkMetadata, err = JSONToMetadata(chunkMetadata); err != nil {
			return nil, err
		}
		if res.DocumentMetadata, err = JSONToMetadata(documentMetadata); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	return results, nil
}

func (r *SearchRepository) CreateSearchRecord(ctx context.Context, record *search.Record) error {
	metadata, err := MetadataToJSON(record.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO search_records (id, workspace_id, user_id, query_text, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID,
		record.WorkspaceID,
		StringPtrToPgtext(record.UserID),
		record.Query,
		metadata,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create search record: %w", err)
	}
	return nil
}

func (r *SearchRepository) ListSearchRecords(ctx context.Context, workspaceID string, limit int) ([]*search.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, workspace_id, user_id, query_text, metadata, created_at
		FROM search_records
		WHERE workspace_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list search records: %w", err)
	}
	defer rows.Close()

	records := make([]*search.Record, 0, limit)
	for rows.Next() {
		var (
			rec      search.Record
			userID   pgtype.Text
			metadata []byte
		)
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &userID, &rec.Query, &metadata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search record: %w", err)
		}
		rec.UserID = PgtextToStringPtr(userID)
		if rec.Metadata, err = JSONToMetadata(metadata); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search records: %w", err)
	}

	return records, nil
}
