package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
)

// DocumentUploadAction はファイルを取り込むコマンドのアクション
func DocumentUploadAction(ctx context.Context, cmd *cli.Command) error {
	workspaceID := cmd.String("workspace")
	path := cmd.String("file")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	var metadata map[string]any
	if raw := cmd.String("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return fmt.Errorf("--metadata は JSON オブジェクトで指定してください: %w", err)
		}
	}

	var uploaderID *string
	if user := cmd.String("user"); user != "" {
		uploaderID = &user
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Config.RequireOpenAI(); err != nil {
		return err
	}

	doc, err := appCtx.Container.DocumentService.Upload(ctx, ingestion.UploadParams{
		WorkspaceID: workspaceID,
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
		UploaderID:  uploaderID,
		Metadata:    metadata,
	})
	if err != nil {
		return err
	}

	renderDocumentDetail(os.Stdout, doc)
	if doc.Status == ingestion.StatusError {
		return fmt.Errorf("ドキュメントの取り込みに失敗しました: %s", derefString(doc.ErrorMessage))
	}
	return nil
}

// DocumentListAction はドキュメント一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	filter := ingestion.ListFilter{
		WorkspaceID: cmd.String("workspace"),
		Limit:       cmd.Int("limit"),
		Offset:      cmd.Int("offset"),
	}
	if raw := cmd.String("status"); raw != "" {
		status, ok := ingestion.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("不明なステータスです: %s", raw)
		}
		filter.Status = &status
	}
	if raw := cmd.String("type"); raw != "" {
		kind, ok := format.Parse(raw)
		if !ok {
			return fmt.Errorf("不明なドキュメント種別です: %s", raw)
		}
		filter.Kind = &kind
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.DocumentService.List(ctx, filter)
	if err != nil {
		return err
	}

	if len(result.Documents) == 0 {
		fmt.Println("ドキュメントはありません")
		return nil
	}
	renderDocumentsTable(os.Stdout, result.Documents)
	fmt.Printf("\n%d件中 %d-%d件を表示\n", result.Total, result.Offset+1, result.Offset+len(result.Documents))
	return nil
}

// DocumentShowAction はドキュメント詳細を表示するコマンドのアクション
func DocumentShowAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, err := appCtx.Container.DocumentService.Get(ctx, cmd.String("workspace"), cmd.String("id"))
	if err != nil {
		return err
	}

	renderDocumentDetail(os.Stdout, doc)
	return nil
}

// DocumentContentAction はドキュメントのチャンクを表示するコマンドのアクション
func DocumentContentAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	content, err := appCtx.Container.DocumentService.GetContent(ctx, cmd.String("workspace"), cmd.String("id"))
	if err != nil {
		return err
	}

	renderDocumentContent(os.Stdout, content)
	return nil
}

// DocumentDeleteAction はドキュメントを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	documentID := cmd.String("id")
	permanent := cmd.Bool("permanent")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.DocumentService.Delete(ctx, cmd.String("workspace"), documentID, permanent); err != nil {
		return err
	}

	if permanent {
		fmt.Printf("✓ ドキュメント %s を完全に削除しました\n", documentID)
	} else {
		fmt.Printf("✓ ドキュメント %s を削除しました\n", documentID)
	}
	return nil
}
