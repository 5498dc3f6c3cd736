package format

import (
	"path/filepath"
	"strings"
)

// Kind はドキュメントの種別を表す
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindXLSX  Kind = "xlsx"
	KindCSV   Kind = "csv"
	KindTXT   Kind = "txt"
	KindHTML  Kind = "html"
	KindPPTX  Kind = "pptx"
	KindMD    Kind = "md"
	KindJSON  Kind = "json"
	KindOther Kind = "other"
)

var extensionKinds = map[string]Kind{
	"pdf":      KindPDF,
	"doc":      KindDOCX,
	"docx":     KindDOCX,
	"xls":      KindXLSX,
	"xlsx":     KindXLSX,
	"xlsm":     KindXLSX,
	"csv":      KindCSV,
	"txt":      KindTXT,
	"htm":      KindHTML,
	"html":     KindHTML,
	"ppt":      KindPPTX,
	"pptx":     KindPPTX,
	"md":       KindMD,
	"markdown": KindMD,
	"json":     KindJSON,
}

// Kinds は既知の種別を列挙する
func Kinds() []Kind {
	return []Kind{KindPDF, KindDOCX, KindXLSX, KindCSV, KindTXT, KindHTML, KindPPTX, KindMD, KindJSON, KindOther}
}

// Detect はファイル名の拡張子（大文字小文字を区別しない）から種別を判定する。
// 未知または拡張子なしの場合は KindOther を返す
func Detect(filename string) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return KindOther
}

// Parse は文字列を Kind に変換する
func Parse(value string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == strings.ToLower(value) {
			return k, true
		}
	}
	return "", false
}

func (k Kind) String() string {
	return string(k)
}
