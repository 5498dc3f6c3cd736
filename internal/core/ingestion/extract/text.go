package extract

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
	"github.com/jinford/knowledge-rag/internal/core/apperr"
	"github.com/jinford/knowledge-rag/internal/core/ingestion/format"
	"golang.org/x/net/html"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// decodeUTF8 は不正なバイト列を置換文字に置き換えてデコードする
func decodeUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

type plainTextExtractor struct {
	k format.Kind
}

func (x plainTextExtractor) kind() format.Kind { return x.k }

func (x plainTextExtractor) extract(data []byte, filename string) (*Result, error) {
	text := decodeUTF8(data)
	metadata := map[string]any{
		"line_count": strings.Count(text, "\n") + 1,
	}
	if lang := enry.GetLanguage(filename, data); lang != "" {
		metadata["language"] = lang
	}
	return &Result{Text: text, Metadata: metadata}, nil
}

type jsonExtractor struct{}

func (jsonExtractor) kind() format.Kind { return format.KindJSON }

// extract はキー順序を保ったままインデント2で整形する
func (jsonExtractor) extract(data []byte, _ string) (*Result, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return nil, apperr.NewValidationError("file", "invalid JSON file: %v", err)
	}

	metadata := map[string]any{}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		keys, err := topLevelKeys(trimmed)
		if err != nil {
			return nil, apperr.NewValidationError("file", "invalid JSON file: %v", err)
		}
		metadata["json_keys"] = keys
		metadata["structure"] = "object"
	case len(trimmed) > 0 && trimmed[0] == '[':
		metadata["json_keys"] = []string{}
		metadata["structure"] = "array"
	default:
		metadata["json_keys"] = []string{}
		metadata["structure"] = "scalar"
	}

	return &Result{Text: pretty.String(), Metadata: metadata}, nil
}

func topLevelKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

type htmlExtractor struct{}

func (htmlExtractor) kind() format.Kind { return format.KindHTML }

// extract はマークアップを除去し、テキストノードのみを空白区切りで連結する。
// script と style の中身は対象外
func (htmlExtractor) extract(data []byte, _ string) (*Result, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(decodeUTF8(data)))

	var (
		parts []string
		skip  int
	)
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			if tokenizer.Err() == io.EOF {
				break
			}
			return nil, apperr.NewExtractionError(string(format.KindHTML), tokenizer.Err())
		}

		switch tt {
		case html.StartTagToken:
			if isRawTextTag(tokenizer) {
				skip++
			}
		case html.EndTagToken:
			if isRawTextTag(tokenizer) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}

	return &Result{
		Text: strings.Join(parts, " "),
		Metadata: map[string]any{
			"html_size": len(data),
		},
	}, nil
}

func isRawTextTag(tokenizer *html.Tokenizer) bool {
	name, _ := tokenizer.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

type otherExtractor struct{}

func (otherExtractor) kind() format.Kind { return format.KindOther }

// extract は UTF-8 として読めるものはテキスト化し、バイナリはプレースホルダへ縮退する
func (otherExtractor) extract(data []byte, filename string) (*Result, error) {
	if enry.IsBinary(data) {
		return &Result{
			Text:     "Binary file: " + filename,
			Metadata: map[string]any{"binary": true},
		}, nil
	}

	text := decodeUTF8(data)
	return &Result{
		Text:     text,
		Metadata: map[string]any{"size": utf8.RuneCountInString(text)},
	}, nil
}
