package chunk

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize はチャンクの既定サイズ（文字数）
	DefaultSize = 1000
	// DefaultOverlap は隣接チャンク間の既定オーバーラップ（文字数）
	DefaultOverlap = 200
	// EmptyPlaceholder は空ドキュメントに対して生成する番兵チャンクの本文
	EmptyPlaceholder = "[Empty document]"
)

// ErrInvalidConfig は設定が不正な場合に返されます
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config はスライディングウィンドウの設定
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate は 0 <= Overlap < Size を検証する
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive (got %d)", ErrInvalidConfig, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size (got overlap=%d, size=%d)", ErrInvalidConfig, c.Overlap, c.Size)
	}
	return nil
}

// TokenCounter はトークン数を計測する
type TokenCounter interface {
	CountTokens(text string) int
}

// Piece は永続化前のチャンク
type Piece struct {
	Index    int
	Content  string
	Metadata map[string]any
}

// Splitter は文字単位のスライディングウィンドウでテキストを分割する
type Splitter struct {
	cfg     Config
	counter TokenCounter
}

// SplitterOption は Splitter のオプション設定
type SplitterOption func(*Splitter)

// WithTokenCounter はチャンクメタデータに token_count を付与する
func WithTokenCounter(counter TokenCounter) SplitterOption {
	return func(s *Splitter) {
		s.counter = counter
	}
}

// NewSplitter は新しい Splitter を作成する
func NewSplitter(cfg Config, opts ...SplitterOption) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Splitter{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config は設定を返す
func (s *Splitter) Config() Config {
	return s.cfg
}

// Split はテキストを Size 文字のウィンドウに分割し、開始位置を Size-Overlap ずつ進める。
// ウィンドウ終端がテキスト長に達した時点で終了し、末尾の短いウィンドウも出力する。
// 空または空白のみのテキストは番兵チャンクを1つだけ返す
func (s *Splitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return []Piece{{
			Index:    0,
			Content:  EmptyPlaceholder,
			Metadata: map[string]any{"empty": true},
		}}
	}

	runes := []rune(text)
	length := len(runes)
	step := s.cfg.Size - s.cfg.Overlap

	pieces := make([]Piece, 0, length/step+1)
	for start := 0; ; start += step {
		end := min(start+s.cfg.Size, length)
		content := string(runes[start:end])

		metadata := map[string]any{
			"start_char":  start,
			"end_char":    end,
			"char_length": end - start,
		}
		if s.counter != nil {
			metadata["token_count"] = s.counter.CountTokens(content)
		}

		pieces = append(pieces, Piece{
			Index:    len(pieces),
			Content:  content,
			Metadata: metadata,
		})

		if end >= length {
			break
		}
	}

	return pieces
}
