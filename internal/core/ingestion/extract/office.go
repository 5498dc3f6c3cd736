package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
)

var errMissingPart = errors.New("required document part not found")

type docxExtractor struct{}

func (docxExtractor) kind() format.Kind { return format.KindDOCX }

func (x docxExtractor) extract(data []byte, _ string) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.NewExtractionError(string(x.kind()), err)
	}

	content, err := readZipPart(reader, "word/document.xml")
	if err != nil {
		return nil, apperr.NewExtractionError(string(x.kind()), err)
	}

	text, tables, err := wordprocessingText(content)
	if err != nil {
		return nil, apperr.NewExtractionError(string(x.kind()), err)
	}

	// 段落数は改行数からの近似値
	return &Result{
		Text: text,
		Metadata: map[string]any{
			"paragraph_count": strings.Count(text, "\n") + 1,
			"section_count":   1,
			"has_tables":      tables > 0,
			"table_count":     tables,
		},
	}, nil
}

// wordprocessingText は word/document.xml を走査し、段落を改行で連結したテキストと表の数を返す
func wordprocessingText(content []byte) (string, int, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var (
		b        strings.Builder
		inText   bool
		runDepth int
		tables   int
		wrotePar bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("failed to parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "r":
				runDepth++
			case "tab":
				// pPr 配下の tab はタブ位置の定義
				if runDepth > 0 {
					b.WriteString("\t")
				}
			case "br", "cr":
				b.WriteString("\n")
			case "tbl":
				tables++
			case "p":
				if wrotePar {
					b.WriteString("\n")
				}
				wrotePar = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				runDepth--
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), tables, nil
}

type pptxExtractor struct{}

func (pptxExtractor) kind() format.Kind { return format.KindPPTX }

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (x pptxExtractor) extract(data []byte, _ string) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.NewExtractionError(string(x.kind()), err)
	}

	type slidePart struct {
		number int
		file   *zip.File
	}
	var slides []slidePart
	for _, f := range reader.File {
		m := slidePartPattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slidePart{number: n, file: f})
	}
	if len(slides) == 0 {
		return nil, apperr.NewExtractionError(string(x.kind()), errMissingPart)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	blocks := make([]string, 0, len(slides))
	for _, s := range slides {
		content, err := readZipFile(s.file)
		if err != nil {
			return nil, apperr.NewExtractionError(string(x.kind()), err)
		}
		text, _, err := wordprocessingText(content)
		if err != nil {
			return nil, apperr.NewExtractionError(string(x.kind()), fmt.Errorf("slide %d: %w", s.number, err))
		}
		blocks = append(blocks, fmt.Sprintf("Slide %d:\n%s", s.number, text))
	}

	return &Result{
		Text: strings.Join(blocks, "\n\n"),
		Metadata: map[string]any{
			"slide_count": len(slides),
		},
	}, nil
}

func readZipPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, f := range reader.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("%w: %s", errMissingPart, name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return content, nil
}
