package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/knowledge-rag/internal/core/search"
)

// SearchQueryAction は類似検索を実行するコマンドのアクション
func SearchQueryAction(ctx context.Context, cmd *cli.Command) error {
	params := search.SearchParams{
		WorkspaceID: cmd.String("workspace"),
		Query:       cmd.String("query"),
		Limit:       cmd.Int("limit"),
	}
	if cmd.IsSet("threshold") {
		threshold := cmd.Float("threshold")
		params.SimilarityThreshold = &threshold
	}
	if user := cmd.String("user"); user != "" {
		params.UserID = &user
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Config.RequireOpenAI(); err != nil {
		return err
	}

	results, err := appCtx.Container.SearchService.Search(ctx, params)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("該当するドキュメントはありません")
		return nil
	}
	renderSearchResults(os.Stdout, results)
	return nil
}

// SearchHistoryAction は検索履歴を表示するコマンドのアクション
func SearchHistoryAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	records, err := appCtx.Container.SearchService.History(ctx, cmd.String("workspace"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("検索履歴はありません")
		return nil
	}
	renderSearchHistory(os.Stdout, records)
	return nil
}

// toolCaller はエージェント向け検索ツールの呼び出し口
type toolCaller interface {
	Name() string
	Call(ctx context.Context, workspaceID, query string) (string, error)
}

// SearchToolAction はエージェント向け検索ツールを実行し、LLM に渡されるテキストをそのまま表示する
func SearchToolAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Config.RequireOpenAI(); err != nil {
		return err
	}

	return writeToolResult(ctx, os.Stdout, appCtx.Container.SearchTool, cmd.String("workspace"), cmd.String("query"))
}

func writeToolResult(ctx context.Context, w io.Writer, tool toolCaller, workspaceID, query string) error {
	out, err := tool.Call(ctx, workspaceID, query)
	if err != nil {
		return fmt.Errorf("%s の実行に失敗: %w", tool.Name(), err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
