package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/jinford/knowledge-rag/internal/interface/httpapi"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Config.RequireOpenAI(); err != nil {
		return err
	}

	addr := appCtx.Config.Server.Addr
	if v := cmd.String("addr"); v != "" {
		addr = v
	}

	server := httpapi.NewServer(
		httpapi.Config{
			Addr:           addr,
			MaxUploadBytes: appCtx.Config.Ingestion.MaxUploadBytes,
		},
		appCtx.Container.DocumentService,
		appCtx.Container.SearchService,
		httpapi.WithServerLogger(appCtx.Logger()),
		httpapi.WithMetrics(appCtx.Container.Metrics),
		httpapi.WithHealthChecker(appCtx.Container.Database().Pool),
	)

	return server.Run(ctx)
}
