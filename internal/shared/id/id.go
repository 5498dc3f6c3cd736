package id

import (
	"strings"

	"github.com/google/uuid"
)

// 識別子のプレフィックス
const (
	PrefixDocument  = "doc_"
	PrefixChunk     = "chk_"
	PrefixEmbedding = "emb_"
	PrefixSearch    = "srch_"
)

// New はプレフィックス付きの不透明な識別子を生成する
func New(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewDocument() string  { return New(PrefixDocument) }
func NewChunk() string     { return New(PrefixChunk) }
func NewEmbedding() string { return New(PrefixEmbedding) }
func NewSearch() string    { return New(PrefixSearch) }

// HasPrefix は識別子が指定された種別のものかを判定する
func HasPrefix(value, prefix string) bool {
	return strings.HasPrefix(value, prefix) && len(value) > len(prefix)
}
