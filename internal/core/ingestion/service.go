package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/chunk"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/jinford/knowledge-rag/internal/shared/id"
)

const (
	// DefaultListLimit は一覧取得のデフォルト件数
	DefaultListLimit = 100
	// MaxListLimit は一覧取得の最大件数
	MaxListLimit = 100
	// DefaultContentType は Content-Type 未指定時の値
	DefaultContentType = "application/octet-stream"
)

// Service はドキュメントのインジェストと管理のユースケースを提供する
type Service struct {
	repository Repository
	transactor Transactor
	extractor  Extractor
	splitter   *chunk.Splitter
	embedder   Embedder
	recorder   Recorder
	logger     *slog.Logger
}

type serviceOptions struct {
	transactor Transactor
	recorder   Recorder
	logger     *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithIngestionLogger は Service にロガーを設定する
func WithIngestionLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithTransactor は Embedding の一括保存に使うトランザクションを設定する
func WithTransactor(tx Transactor) ServiceOption {
	return func(o *serviceOptions) {
		o.transactor = tx
	}
}

// WithRecorder はメトリクスの記録先を設定する
func WithRecorder(recorder Recorder) ServiceOption {
	return func(o *serviceOptions) {
		o.recorder = recorder
	}
}

// NewService は新しい Service を作成する
func NewService(
	repo Repository,
	extractor Extractor,
	splitter *chunk.Splitter,
	embedder Embedder,
	opts ...ServiceOption,
) *Service {
	options := serviceOptions{
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

	return &Service{
		repository: repo,
		transactor: options.transactor,
		extractor:  extractor,
		splitter:   splitter,
		embedder:   embedder,
		recorder:   options.recorder,
		logger:     options.logger,
	}
}

// Upload はドキュメントを登録し、抽出からEmbedding保存までを同期的に実行する。
// 抽出・Embedding の失敗やキャンセルはドキュメントを Error 状態にして返し、エラーとしては返さない。
// ストレージ層の失敗はそのまま返す
func (s *Service) Upload(ctx context.Context, params UploadParams) (*Document, error) {
	filename, err := validateUpload(params)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.FindActiveDocumentByFilename(ctx, params.WorkspaceID, filename)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの重複確認に失敗: %w", err)
	}
	if existing.IsPresent() {
		return nil, &apperr.DuplicateError{WorkspaceID: params.WorkspaceID, Filename: filename}
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:          id.NewDocument(),
		WorkspaceID: params.WorkspaceID,
		Filename:    filename,
		Kind:        format.Detect(filename),
		ContentType: contentType,
		ByteSize:    int64(len(params.Data)),
		UploaderID:  params.UploaderID,
		Status:      StatusPending,
		Metadata:    mergeMetadata(nil, params.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// 同名の同時アップロードはストレージの一意制約で DuplicateError になる
	if err := s.repository.CreateDocument(ctx, doc); err != nil {
		if apperr.IsDuplicate(err) {
			return nil, err
		}
		return nil, fmt.Errorf("ドキュメントの作成に失敗: %w", err)
	}

	s.logger.Info("ドキュメントを登録",
		"document_id", doc.ID,
		"workspace_id", doc.WorkspaceID,
		"filename", doc.Filename,
		"kind", doc.Kind,
		"size", doc.ByteSize,
	)

	startTime := time.Now()
	chunkCount, err := s.process(ctx, doc, params.Data)
	if errors.Is(err, ErrIngestionAborted) {
		return s.abandon(ctx, doc)
	}
	if err != nil {
		return s.fail(ctx, doc, err, startTime)
	}

	s.recorder.ObserveIngestion(StatusCompleted, time.Since(startTime))
	s.logger.Info("ドキュメントのインジェストが完了",
		"document_id", doc.ID,
		"chunk_count", chunkCount,
		"duration", time.Since(startTime),
	)

	return doc, nil
}

// fail はドキュメントを Error 状態に遷移させる。
// 呼び出し元のキャンセル後でも状態を書き込めるよう、キャンセルを切り離したコンテキストを使う
func (s *Service) fail(ctx context.Context, doc *Document, cause error, startTime time.Time) (*Document, error) {
	message := cause.Error()
	if ctxErr := ctx.Err(); ctxErr != nil {
		message = fmt.Sprintf("ingestion cancelled: %v", ctxErr)
	}

	writeCtx := context.WithoutCancel(ctx)
	moved, err := s.repository.TransitionDocumentStatus(writeCtx, doc.ID, []DocumentStatus{StatusPending, StatusProcessing}, StatusError, &message)
	if err != nil {
		s.logger.Error("Error状態への更新に失敗",
			"document_id", doc.ID,
			"cause", cause,
			"error", err,
		)
		return nil, fmt.Errorf("ドキュメントの状態更新に失敗: %w", errors.Join(cause, err))
	}
	if !moved {
		// 処理中に削除された
		return s.abandon(writeCtx, doc)
	}

	doc.Status = StatusError
	doc.ErrorMessage = &message
	doc.UpdatedAt = time.Now().UTC()
	s.recorder.ObserveIngestion(StatusError, time.Since(startTime))

	if isProcessingFailure(ctx, cause) {
		s.logger.Warn("ドキュメントの処理に失敗",
			"document_id", doc.ID,
			"code", apperr.CodeOf(cause),
			"error", message,
		)
		return doc, nil
	}

	s.logger.Error("ドキュメント処理中にストレージエラーが発生",
		"document_id", doc.ID,
		"error", cause,
	)
	return nil, fmt.Errorf("ドキュメントの処理に失敗: %w", cause)
}

// abandon は処理途中で削除されたドキュメントの現在の状態を返す。
// 削除済みの状態は上書きしない
func (s *Service) abandon(ctx context.Context, doc *Document) (*Document, error) {
	s.logger.Warn("削除されたドキュメントのインジェストを中止",
		"document_id", doc.ID,
		"workspace_id", doc.WorkspaceID,
	)

	found, err := s.repository.GetDocument(context.WithoutCancel(ctx), doc.WorkspaceID, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}
	current, ok := found.Get()
	if !ok {
		return nil, apperr.NewNotFoundError("document", doc.ID)
	}
	return current, nil
}

// isProcessingFailure は Error 状態で吸収すべき失敗かを判定する
func isProcessingFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	switch {
	case apperr.IsExtraction(err),
		apperr.IsValidation(err),
		apperr.IsEmbeddingProvider(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrCompletionRejected):
		return true
	}
	return false
}

func validateUpload(params UploadParams) (string, error) {
	if strings.TrimSpace(params.WorkspaceID) == "" {
		return "", apperr.NewValidationError("workspace_id", "is required")
	}
	// Windows のクライアントはパス区切りに \ を使う
	filename := strings.TrimSpace(path.Base(strings.ReplaceAll(params.Filename, `\`, "/")))
	if params.Filename == "" || filename == "." || filename == "/" {
		return "", apperr.NewValidationError("filename", "is required")
	}
	return filename, nil
}

// Get はドキュメントを取得する。論理削除済みのドキュメントも返す
func (s *Service) Get(ctx context.Context, workspaceID, documentID string) (*Document, error) {
	found, err := s.repository.GetDocument(ctx, workspaceID, documentID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}
	doc, ok := found.Get()
	if !ok {
		return nil, apperr.NewNotFoundError("document", documentID)
	}
	return doc, nil
}

// List はフィルタ条件に一致するドキュメントを新しい順に返す。論理削除済みは含まない
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if strings.TrimSpace(filter.WorkspaceID) == "" {
		return nil, apperr.NewValidationError("workspace_id", "is required")
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit < 1 || filter.Limit > MaxListLimit {
		return nil, apperr.NewValidationError("limit", "must be between 1 and %d", MaxListLimit)
	}
	if filter.Offset < 0 {
		return nil, apperr.NewValidationError("offset", "must not be negative")
	}
	if filter.Status != nil && *filter.Status == StatusDeleted {
		return nil, apperr.NewValidationError("status", "deleted documents are not listed")
	}

	docs, total, err := s.repository.ListDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}

	return &ListResult{
		Documents: docs,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}

// GetContent はドキュメントと全チャンクを chunk_index 順に返す
func (s *Service) GetContent(ctx context.Context, workspaceID, documentID string) (*DocumentContent, error) {
	doc, err := s.Get(ctx, workspaceID, documentID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.repository.ListChunks(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("チャンクの取得に失敗: %w", err)
	}

	return &DocumentContent{Document: doc, Chunks: chunks}, nil
}

// Delete はドキュメントを削除する。permanent が false の場合は論理削除、true の場合はチャンクと Embedding を含めて物理削除する
func (s *Service) Delete(ctx context.Context, workspaceID, documentID string, permanent bool) error {
	doc, err := s.Get(ctx, workspaceID, documentID)
	if err != nil {
		return err
	}

	if permanent {
		deleted, err := s.repository.DeleteDocument(ctx, workspaceID, documentID)
		if err != nil {
			return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
		}
		if !deleted {
			return apperr.NewNotFoundError("document", documentID)
		}
		s.logger.Info("ドキュメントを物理削除", "document_id", documentID, "workspace_id", workspaceID)
		return nil
	}

	switch doc.Status {
	case StatusDeleted:
		return apperr.NewNotFoundError("document", documentID)
	case StatusProcessing:
		return apperr.NewValidationError("status", "document %s is still processing", documentID)
	}

	deleted, err := s.repository.SoftDeleteDocument(ctx, workspaceID, documentID)
	if err != nil {
		return fmt.Errorf("ドキュメントの論理削除に失敗: %w", err)
	}
	if !deleted {
		return apperr.NewNotFoundError("document", documentID)
	}

	s.logger.Info("ドキュメントを論理削除", "document_id", documentID, "workspace_id", workspaceID)
	return nil
}
