package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const (
	encodingUTF8   = "utf-8"
	encodingLatin1 = "latin1"
)

type xlsxExtractor struct{}

func (xlsxExtractor) kind() format.Kind { return format.KindXLSX }

func (x xlsxExtractor) extract(data []byte, _ string) (*Result, error) {
	return safeExtract(x.kind(), func() (*Result, error) {
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, apperr.NewExtractionError(string(x.kind()), err)
		}
		defer f.Close()

		sheetNames := f.GetSheetList()
		sheets := make(map[string]any, len(sheetNames))

		var b strings.Builder
		for _, name := range sheetNames {
			rows, err := f.GetRows(name)
			if err != nil {
				return nil, apperr.NewExtractionError(string(x.kind()), fmt.Errorf("sheet %q: %w", name, err))
			}

			header, body := splitHeader(rows)
			sheets[name] = map[string]any{
				"rows":         len(body),
				"columns":      len(header),
				"column_names": header,
			}

			b.WriteString(renderSheet(name, header, body))
			b.WriteString("\n\n")
		}

		return &Result{
			Text: b.String(),
			Metadata: map[string]any{
				"sheet_count": len(sheetNames),
				"sheet_names": sheetNames,
				"sheets":      sheets,
			},
		}, nil
	})
}

type csvExtractor struct{}

func (csvExtractor) kind() format.Kind { return format.KindCSV }

// extract は UTF-8 として読み込み、不正なバイト列であれば Latin-1 として再試行する
func (x csvExtractor) extract(data []byte, filename string) (*Result, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	encoding := encodingUTF8
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, apperr.NewExtractionError(string(x.kind()), fmt.Errorf("failed to decode as latin1: %w", err))
		}
		data = decoded
		encoding = encodingLatin1
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.NewExtractionError(string(x.kind()), fmt.Errorf("failed to parse csv (%s): %w", encoding, err))
	}

	header, body := splitHeader(records)
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	return &Result{
		Text: renderSheet(name, header, body),
		Metadata: map[string]any{
			"row_count":    len(body),
			"column_count": len(header),
			"column_names": header,
			"encoding":     encoding,
		},
	}, nil
}

func splitHeader(rows [][]string) ([]string, [][]string) {
	if len(rows) == 0 {
		return []string{}, nil
	}
	header := make([]string, len(rows[0]))
	copy(header, rows[0])
	return header, rows[1:]
}

// renderSheet はシート名の見出しに続けて列揃えした表テキストを生成する
func renderSheet(name string, header []string, body [][]string) string {
	var buf bytes.Buffer
	buf.WriteString("Sheet: " + name + "\n")

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeRow := func(cells []string) {
		fmt.Fprintln(w, strings.Join(sanitizeCells(cells), "\t"))
	}
	if len(header) > 0 {
		writeRow(header)
	}
	for _, row := range body {
		writeRow(row)
	}
	_ = w.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

func sanitizeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "\t", " ")
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}
