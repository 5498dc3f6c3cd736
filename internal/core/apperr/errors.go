package apperr

import (
	"errors"
	"fmt"
)

// Code は API 境界で返す機械可読なエラーコード
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeDuplicate         Code = "duplicate"
	CodeExtraction        Code = "extraction_failed"
	CodeEmbeddingProvider Code = "embedding_provider_error"
	CodeNotFound          Code = "not_found"
	CodeInternal          Code = "internal_error"
)

// Coded はエラーコードを持つエラー
type Coded interface {
	error
	Code() Code
}

// ValidationError は入力不正を表す。副作用が発生する前に返される
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Code() Code { return CodeValidation }

// NewValidationError は新しい ValidationError を作成する
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DuplicateError はワークスペース内でのファイル名重複を表す
type DuplicateError struct {
	WorkspaceID string
	Filename    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("document %q already exists in workspace %s", e.Filename, e.WorkspaceID)
}

func (e *DuplicateError) Code() Code { return CodeDuplicate }

// ExtractionError は形式固有のパース失敗を表す
type ExtractionError struct {
	Kind string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Code() Code { return CodeExtraction }

// NewExtractionError は新しい ExtractionError を作成する
func NewExtractionError(kind string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Err: err}
}

// EmbeddingProviderError は外部 Embedding プロバイダの失敗または不正な応答を表す
type EmbeddingProviderError struct {
	Batch int
	Err   error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed at batch %d: %v", e.Batch, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

func (e *EmbeddingProviderError) Code() Code { return CodeEmbeddingProvider }

// NotFoundError は存在しないリソースへのアクセスを表す
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Code() Code { return CodeNotFound }

// NewNotFoundError は新しい NotFoundError を作成する
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// CodeOf はエラーチェーンからコードを取り出す。コードを持たない場合は CodeInternal
func CodeOf(err error) Code {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsDuplicate(err error) bool {
	var target *DuplicateError
	return errors.As(err, &target)
}

func IsExtraction(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

func IsEmbeddingProvider(err error) bool {
	var target *EmbeddingProviderError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
