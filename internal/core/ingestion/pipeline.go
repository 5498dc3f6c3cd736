package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinford/knowledge-rag/internal/shared/id"
)

var (
	// ErrCompletionRejected は完了条件（全チャンクにEmbeddingが存在する）を満たさない場合のエラー
	ErrCompletionRejected = errors.New("document completion rejected")
	// ErrIngestionAborted は処理開始前にドキュメントが削除され、インジェストを打ち切った場合のエラー
	ErrIngestionAborted = errors.New("document ingestion aborted")
)

// process は Processing への遷移から Completed までを順に実行し、作成したチャンク数を返す
func (s *Service) process(ctx context.Context, doc *Document, data []byte) (int, error) {
	moved, err := s.repository.TransitionDocumentStatus(ctx, doc.ID, []DocumentStatus{StatusPending}, StatusProcessing, nil)
	if err != nil {
		return 0, fmt.Errorf("Processing状態への更新に失敗: %w", err)
	}
	if !moved {
		return 0, fmt.Errorf("%w: document %s is no longer pending", ErrIngestionAborted, doc.ID)
	}
	doc.Status = StatusProcessing

	// 1. 抽出
	extracted, err := s.extractor.Extract(ctx, data, doc.Kind, doc.Filename)
	if err != nil {
		return 0, err
	}

	doc.Metadata = mergeMetadata(doc.Metadata, extracted.Metadata)
	if err := s.repository.UpdateDocumentMetadata(ctx, doc.ID, doc.Metadata); err != nil {
		return 0, fmt.Errorf("メタデータの更新に失敗: %w", err)
	}

	// 2. チャンク分割と一括保存
	chunks := s.buildChunks(doc.ID, extracted.Text)
	if err := s.repository.CreateChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("チャンクの保存に失敗: %w", err)
	}
	s.logger.Debug("チャンクを保存", "document_id", doc.ID, "chunk_count", len(chunks))

	// 3. Embedding 生成（チャンク順）
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: %d chunks, %d embeddings", ErrCompletionRejected, len(chunks), len(vectors))
	}

	embeddings := make([]*Embedding, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		embeddings[i] = &Embedding{
			ID:        id.NewEmbedding(),
			ChunkID:   c.ID,
			Vector:    vectors[i],
			CreatedAt: now,
		}
	}

	// 4. Embedding の保存
	if err := s.saveEmbeddings(ctx, embeddings); err != nil {
		return 0, fmt.Errorf("Embeddingの保存に失敗: %w", err)
	}

	// 5. 完了
	completed, err := s.repository.CompleteDocument(ctx, doc.ID, len(chunks))
	if err != nil {
		return 0, fmt.Errorf("Completed状態への更新に失敗: %w", err)
	}
	if !completed {
		return 0, fmt.Errorf("%w: document %s", ErrCompletionRejected, doc.ID)
	}
	doc.Status = StatusCompleted
	doc.UpdatedAt = time.Now().UTC()

	return len(chunks), nil
}

func (s *Service) buildChunks(documentID, text string) []*Chunk {
	pieces := s.splitter.Split(text)
	now := time.Now().UTC()

	chunks := make([]*Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &Chunk{
			ID:         id.NewChunk(),
			DocumentID: documentID,
			Index:      p.Index,
			Content:    p.Content,
			Metadata:   p.Metadata,
			CreatedAt:  now,
		}
	}
	return chunks
}

func (s *Service) saveEmbeddings(ctx context.Context, embeddings []*Embedding) error {
	if s.transactor == nil {
		return s.repository.CreateEmbeddings(ctx, embeddings)
	}
	return s.transactor.WithinTransaction(ctx, func(repo Repository) error {
		return repo.CreateEmbeddings(ctx, embeddings)
	})
}
