package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
)

const (
	// MaxBatchSize はプロバイダ呼び出し1回あたりの最大件数
	MaxBatchSize = 100
	// MinBatchSize は最小バッチサイズ（MaxBatchSize()が0を返した場合のフォールバック）
	MinBatchSize = 1
)

var (
	// ErrNoTexts は入力が空の場合に返されます
	ErrNoTexts = errors.New("no texts provided")
	// ErrCountMismatch はプロバイダが入力と異なる件数のベクトルを返した場合のエラー
	ErrCountMismatch = errors.New("embedding count mismatch")
	// ErrDimensionMismatch はベクトル次元が設定と一致しない場合のエラー
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider は外部 Embedding API のポート
type Provider interface {
	// BatchEmbed は入力順に1件ずつベクトルを返す
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	// MaxBatchSize は1回の呼び出しで受け付ける最大件数
	MaxBatchSize() int
	// Dimension はベクトル次元
	Dimension() int
	// ModelName はモデル名
	ModelName() string
}

// Batcher は入力をバッチに分割してプロバイダを呼び出し、入力順を保ったまま結果を連結する
type Batcher struct {
	provider  Provider
	batchSize int
	logger    *slog.Logger
}

type batcherOptions struct {
	batchSize int
	logger    *slog.Logger
}

// BatcherOption は Batcher のオプション設定
type BatcherOption func(*batcherOptions)

// WithBatchSize はバッチサイズを上書きする（プロバイダ上限でクリップされる）
func WithBatchSize(size int) BatcherOption {
	return func(o *batcherOptions) {
		o.batchSize = size
	}
}

// WithBatcherLogger はロガーを設定する
func WithBatcherLogger(logger *slog.Logger) BatcherOption {
	return func(o *batcherOptions) {
		o.logger = logger
	}
}

// NewBatcher は新しい Batcher を作成する
func NewBatcher(provider Provider, opts ...BatcherOption) *Batcher {
	options := batcherOptions{
		batchSize: MaxBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Batcher{
		provider:  provider,
		batchSize: effectiveBatchSize(options.batchSize, provider.MaxBatchSize()),
		logger:    options.logger,
	}
}

func effectiveBatchSize(requested, providerMax int) int {
	size := requested
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	if providerMax > 0 && size > providerMax {
		size = providerMax
	}
	if size < MinBatchSize {
		size = MinBatchSize
	}
	return size
}

// BatchSize は実効バッチサイズを返す
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// Dimension はプロバイダのベクトル次元を返す
func (b *Batcher) Dimension() int {
	return b.provider.Dimension()
}

// ModelName はプロバイダのモデル名を返す
func (b *Batcher) ModelName() string {
	return b.provider.ModelName()
}

// Embed は texts[i] に対応するベクトルを output[i] に格納して返す。
// いずれかのバッチが失敗した場合は全体を apperr.EmbeddingProviderError として中断する
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrNoTexts
	}

	vectors := make([][]float32, 0, len(texts))
	dimension := b.provider.Dimension()

	for batch, start := 0, 0; start < len(texts); batch, start = batch+1, start+b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+b.batchSize, len(texts))
		result, err := b.provider.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			b.logger.Warn("Embedding生成に失敗", "batch", batch, "size", end-start, "error", err)
			return nil, &apperr.EmbeddingProviderError{Batch: batch, Err: err}
		}

		if len(result) != end-start {
			return nil, &apperr.EmbeddingProviderError{
				Batch: batch,
				Err:   fmt.Errorf("%w: expected %d, got %d", ErrCountMismatch, end-start, len(result)),
			}
		}
		for i, v := range result {
			if dimension > 0 && len(v) != dimension {
				return nil, &apperr.EmbeddingProviderError{
					Batch: batch,
					Err:   fmt.Errorf("%w: item %d has %d (expected %d)", ErrDimensionMismatch, start+i, len(v), dimension),
				}
			}
		}

		vectors = append(vectors, result...)
		b.logger.Debug("Embeddingバッチ完了", "batch", batch, "size", end-start)
	}

	return vectors, nil
}

// EmbedQuery は単一のクエリ文字列を1件のバッチとして埋め込む
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
