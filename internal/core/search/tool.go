package search

import (
	"context"
)

const (
	// ToolName はエージェントに公開するツール名
	ToolName = "document_search"
	// ToolLimit はツール経由の検索件数
	ToolLimit = 5
	// ToolSimilarityThreshold はツール経由の類似度閾値
	ToolSimilarityThreshold = 0.7
)

// DocumentSearchTool は LLM エージェントから呼び出される検索ツール
type DocumentSearchTool struct {
	service *SearchService
	builder *ContextBuilder
}

// ToolOption は DocumentSearchTool のオプション
type ToolOption func(*DocumentSearchTool)

// WithContextBuilder は結果の整形方法を差し替える
func WithContextBuilder(builder *ContextBuilder) ToolOption {
	return func(t *DocumentSearchTool) {
		t.builder = builder
	}
}

// NewDocumentSearchTool は新しい DocumentSearchTool を作成する
func NewDocumentSearchTool(service *SearchService, opts ...ToolOption) *DocumentSearchTool {
	t := &DocumentSearchTool{service: service}
	for _, opt := range opts {
		opt(t)
	}
	if t.builder == nil {
		t.builder = NewContextBuilder(DefaultContextTokens, nil)
	}
	return t
}

func (t *DocumentSearchTool) Name() string {
	return ToolName
}

func (t *DocumentSearchTool) Description() string {
	return "Search the workspace knowledge base for passages relevant to a natural-language query."
}

// Parameters はツール引数の JSON Schema を返す
func (t *DocumentSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
		},
		"required": []string{"query"},
	}
}

// Call は検索を実行し、LLM に渡すテキストへ整形する
func (t *DocumentSearchTool) Call(ctx context.Context, workspaceID, query string) (string, error) {
	threshold := ToolSimilarityThreshold
	results, err := t.service.Search(ctx, SearchParams{
		WorkspaceID:         workspaceID,
		Query:               query,
		Limit:               ToolLimit,
		SimilarityThreshold: &threshold,
	})
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return "No relevant documents found.", nil
	}

	return t.builder.Build(results), nil
}
