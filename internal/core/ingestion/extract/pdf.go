package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/ledongthuc/pdf"
)

type pdfExtractor struct{}

func (pdfExtractor) kind() format.Kind { return format.KindPDF }

func (x pdfExtractor) extract(data []byte, _ string) (*Result, error) {
	return safeExtract(x.kind(), func() (*Result, error) {
		reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, apperr.NewExtractionError(string(x.kind()), err)
		}

		pageCount := reader.NumPage()
		pages := make([]string, 0, pageCount)
		for i := 1; i <= pageCount; i++ {
			page := reader.Page(i)
			if page.V.IsNull() {
				pages = append(pages, "")
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return nil, apperr.NewExtractionError(string(x.kind()), fmt.Errorf("page %d: %w", i, err))
			}
			pages = append(pages, text)
		}

		return &Result{
			Text: strings.Join(pages, "\n\n"),
			Metadata: map[string]any{
				"page_count": pageCount,
				"pdf_info":   pdfInfo(reader),
			},
		}, nil
	})
}

// pdfInfo は trailer の Info 辞書から文字列値のみを取り出す
func pdfInfo(reader *pdf.Reader) map[string]any {
	info := map[string]any{}
	dict := reader.Trailer().Key("Info")
	if dict.Kind() != pdf.Dict {
		return info
	}
	for _, key := range dict.Keys() {
		v := dict.Key(key)
		switch v.Kind() {
		case pdf.String:
			info[key] = v.Text()
		case pdf.Name:
			info[key] = v.Name()
		}
	}
	return info
}
