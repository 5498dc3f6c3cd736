package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/knowledge-rag/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（設定読み込み後に LOG_LEVEL / LOG_FORMAT で置き換える）
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "knowledge-rag",
		Usage: "ワークスペース単位のドキュメント取り込みとセマンティック検索",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "環境変数ファイルパス",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "HTTPサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "addr",
								Usage: "待ち受けアドレス（省略時は SERVER_ADDR）",
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "migrate",
						Usage:  "スキーマを適用（pgvector 拡張とインデックスを含む）",
						Action: appcli.DBMigrateAction,
					},
				},
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "upload",
						Usage: "ファイルを取り込む",
						Flags: []cli.Flag{
							workspaceFlag(),
							&cli.StringFlag{
								Name:     "file",
								Usage:    "取り込むファイルのパス",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "metadata",
								Usage: "追加メタデータ（JSONオブジェクト）",
							},
							&cli.StringFlag{
								Name:  "user",
								Usage: "アップロードユーザーID",
							},
						},
						Action: appcli.DocumentUploadAction,
					},
					{
						Name:  "list",
						Usage: "ドキュメント一覧を表示",
						Flags: []cli.Flag{
							workspaceFlag(),
							&cli.StringFlag{
								Name:  "status",
								Usage: "ステータスで絞り込み（pending, processing, completed, error）",
							},
							&cli.StringFlag{
								Name:  "type",
								Usage: "ドキュメント種別で絞り込み（pdf, docx, xlsx, csv, txt, html, pptx, md, json, other）",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "取得件数（1-100）",
								Value: 100,
							},
							&cli.IntFlag{
								Name:  "offset",
								Usage: "開始位置",
							},
						},
						Action: appcli.DocumentListAction,
					},
					{
						Name:   "show",
						Usage:  "ドキュメント詳細を表示",
						Flags:  []cli.Flag{workspaceFlag(), documentIDFlag()},
						Action: appcli.DocumentShowAction,
					},
					{
						Name:   "content",
						Usage:  "ドキュメントのチャンクを表示",
						Flags:  []cli.Flag{workspaceFlag(), documentIDFlag()},
						Action: appcli.DocumentContentAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントを削除",
						Flags: []cli.Flag{
							workspaceFlag(),
							documentIDFlag(),
							&cli.BoolFlag{
								Name:  "permanent",
								Usage: "チャンクとEmbeddingを含めて物理削除",
							},
						},
						Action: appcli.DocumentDeleteAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "検索コマンド",
				Commands: []*cli.Command{
					{
						Name:  "query",
						Usage: "類似検索を実行",
						Flags: []cli.Flag{
							workspaceFlag(),
							&cli.StringFlag{
								Name:     "query",
								Aliases:  []string{"q"},
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "取得件数（1-100）",
								Value: 10,
							},
							&cli.FloatFlag{
								Name:  "threshold",
								Usage: "類似度の下限（0-1、省略時は0.7）",
							},
							&cli.StringFlag{
								Name:  "user",
								Usage: "検索ユーザーID",
							},
						},
						Action: appcli.SearchQueryAction,
					},
					{
						Name:  "history",
						Usage: "検索履歴を表示",
						Flags: []cli.Flag{
							workspaceFlag(),
							&cli.IntFlag{
								Name:  "limit",
								Usage: "取得件数（1-100）",
								Value: 20,
							},
						},
						Action: appcli.SearchHistoryAction,
					},
					{
						Name:  "tool",
						Usage: "エージェント向け検索ツールの出力を表示",
						Flags: []cli.Flag{
							workspaceFlag(),
							&cli.StringFlag{
								Name:     "query",
								Aliases:  []string{"q"},
								Usage:    "検索クエリ",
								Required: true,
							},
						},
						Action: appcli.SearchToolAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func workspaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "workspace",
		Aliases:  []string{"w"},
		Usage:    "ワークスペースID",
		Required: true,
	}
}

func documentIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "ドキュメントID",
		Required: true,
	}
}
