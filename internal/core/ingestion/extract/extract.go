// Package extract はアップロードされたバイト列からプレーンテキストと形式固有のメタデータを抽出する。
// 対応形式は format.Kind で列挙される閉じた集合であり、種別ごとに1つの実装と既定の実装を持つ。
package extract

import (
	"context"
	"fmt"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
)

// Result は抽出結果
type Result struct {
	Text     string
	Metadata map[string]any
}

// extractor は種別ごとの抽出処理。パッケージ外からは実装できない
type extractor interface {
	kind() format.Kind
	extract(data []byte, filename string) (*Result, error)
}

// Extractor は種別に応じた抽出処理へディスパッチする
type Extractor struct {
	byKind   map[format.Kind]extractor
	fallback extractor
}

// New は全種別の抽出処理を登録した Extractor を作成する
func New() *Extractor {
	e := &Extractor{
		byKind:   make(map[format.Kind]extractor),
		fallback: otherExtractor{},
	}
	for _, x := range []extractor{
		pdfExtractor{},
		docxExtractor{},
		pptxExtractor{},
		xlsxExtractor{},
		csvExtractor{},
		plainTextExtractor{k: format.KindTXT},
		plainTextExtractor{k: format.KindMD},
		jsonExtractor{},
		htmlExtractor{},
	} {
		e.byKind[x.kind()] = x
	}
	return e
}

// Extract はバイト列を種別に応じてテキストへ変換する。
// 構造化形式のパース失敗は apperr.ExtractionError、不正な JSON は apperr.ValidationError を返す
func (e *Extractor) Extract(ctx context.Context, data []byte, kind format.Kind, filename string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x, ok := e.byKind[kind]
	if !ok {
		x = e.fallback
	}

	result, err := x.extract(data, filename)
	if err != nil {
		return nil, err
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	return result, nil
}

// safeExtract はサードパーティのパーサが panic した場合に ExtractionError へ変換する
func safeExtract(kind format.Kind, fn func() (*Result, error)) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = apperr.NewExtractionError(string(kind), fmt.Errorf("parser panic: %v", r))
		}
	}()
	return fn()
}
