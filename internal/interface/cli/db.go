package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/knowledge-rag/internal/platform/database"
)

// DBMigrateAction はスキーマを適用するコマンドのアクション
func DBMigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer db.Close()

	params := database.SchemaParams{
		Dimension: cfg.OpenAI.EmbeddingDimension,
		IndexKind: cfg.VectorIndex,
	}
	if err := database.Migrate(ctx, db.Pool, params); err != nil {
		return err
	}

	slog.Info("スキーマを適用しました", "dimension", params.Dimension, "index", params.IndexKind)
	return nil
}
