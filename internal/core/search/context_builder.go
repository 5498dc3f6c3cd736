package search

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultContextTokens はツール結果に含めるトークン数の上限
const DefaultContextTokens = 4000

const truncatedMarker = "\n\n... (truncated)"

// TokenCounter はトークン数を計測する
type TokenCounter interface {
	CountTokens(text string) int
}

// ContextBuilder は検索結果を LLM に渡すテキストへ整形する
type ContextBuilder struct {
	maxTokens int
	counter   TokenCounter
}

// NewContextBuilder は新しい ContextBuilder を作成する。
// counter が nil の場合は 1トークン ≈ 4文字 で概算する
func NewContextBuilder(maxTokens int, counter TokenCounter) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}
	return &ContextBuilder{maxTokens: maxTokens, counter: counter}
}

// Build は検索結果を類似度順のセクションに整形し、トークン上限で切り詰める
func (cb *ContextBuilder) Build(results []*SearchResult) string {
	var builder strings.Builder

	for i, r := range results {
		// セパレータ
		if i > 0 {
			builder.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&builder, "## Result %d (File: %s, Similarity: %.3f)\n\n", i+1, r.Filename, r.Similarity)
		builder.WriteString(strings.TrimSpace(r.Content))
		builder.WriteString("\n")
	}

	return cb.TruncateToTokenLimit(strings.TrimRight(builder.String(), "\n"))
}

// TruncateToTokenLimit はトークン上限に収まるように末尾を切り詰める
func (cb *ContextBuilder) TruncateToTokenLimit(text string) string {
	if cb.countTokens(text) <= cb.maxTokens {
		return text
	}

	// 上限に収まる最長のルーン接頭辞を二分探索する
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if cb.countTokens(string(runes[:mid])) <= cb.maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	return string(runes[:lo]) + truncatedMarker
}

func (cb *ContextBuilder) countTokens(text string) int {
	if cb.counter != nil {
		return cb.counter.CountTokens(text)
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
