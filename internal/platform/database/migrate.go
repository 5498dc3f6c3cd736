package database

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ベクトルインデックスの種類
const (
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivfflat"
)

//go:embed schema.sql.tmpl
var schemaTemplate string

var migrationLockID = GenerateLockID("knowledge-rag", "schema")

var schema = template.Must(template.New("schema").Parse(schemaTemplate))

// SchemaParams はスキーマ生成のパラメータ
type SchemaParams struct {
	// Dimension は embedding 列のベクトル次元（起動時に固定）
	Dimension int
	// IndexKind は hnsw または ivfflat
	IndexKind string
	// Lists は ivfflat のリスト数
	Lists int
}

// RenderSchema は DDL を生成する
func RenderSchema(params SchemaParams) (string, error) {
	if params.Dimension <= 0 {
		return "", fmt.Errorf("invalid vector dimension: %d", params.Dimension)
	}
	switch params.IndexKind {
	case "":
		params.IndexKind = IndexHNSW
	case IndexHNSW, IndexIVFFlat:
	default:
		return "", fmt.Errorf("unsupported vector index: %s", params.IndexKind)
	}
	if params.Lists <= 0 {
		params.Lists = 100
	}

	var buf bytes.Buffer
	if err := schema.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render schema: %w", err)
	}
	return buf.String(), nil
}

// Migrate はスキーマを冪等に適用する。
// 複数プロセスから同時に実行された場合はアドバイザリロックで直列化する
func Migrate(ctx context.Context, pool *pgxpool.Pool, params SchemaParams) error {
	ddl, err := RenderSchema(params)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := acquireXactLock(ctx, tx, migrationLockID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}
