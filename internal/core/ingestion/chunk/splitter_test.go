package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func newTestSplitter(t *testing.T, size, overlap int, opts ...SplitterOption) *Splitter {
	t.Helper()
	s, err := NewSplitter(Config{Size: size, Overlap: overlap}, opts...)
	require.NoError(t, err)
	return s
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero overlap", Config{Size: 10, Overlap: 0}, false},
		{"overlap equals size", Config{Size: 10, Overlap: 10}, true},
		{"negative overlap", Config{Size: 10, Overlap: -1}, true},
		{"zero size", Config{Size: 0, Overlap: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitter_EmptyInputProducesSentinel(t *testing.T) {
	s := newTestSplitter(t, DefaultSize, DefaultOverlap)

	for _, input := range []string{"", "   ", "\n\t "} {
		pieces := s.Split(input)
		require.Len(t, pieces, 1)
		assert.Equal(t, EmptyPlaceholder, pieces[0].Content)
		assert.Equal(t, 0, pieces[0].Index)
		assert.Equal(t, true, pieces[0].Metadata["empty"])
	}
}

func TestSplitter_DefaultWindowOffsets(t *testing.T) {
	// Setup
	s := newTestSplitter(t, DefaultSize, DefaultOverlap)
	text := strings.Repeat("abcdefghij", 250)

	// Execute
	pieces := s.Split(text)

	// Assert
	require.Len(t, pieces, 3)
	want := [][2]int{{0, 1000}, {800, 1800}, {1600, 2500}}
	for i, p := range pieces {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, want[i][0], p.Metadata["start_char"])
		assert.Equal(t, want[i][1], p.Metadata["end_char"])
		assert.Equal(t, want[i][1]-want[i][0], p.Metadata["char_length"])
		assert.Equal(t, text[want[i][0]:want[i][1]], p.Content)
	}
}

func TestSplitter_ShortTextSingleChunk(t *testing.T) {
	s := newTestSplitter(t, 100, 20)

	pieces := s.Split("short text")
	require.Len(t, pieces, 1)
	assert.Equal(t, "short text", pieces[0].Content)
	assert.Equal(t, 10, pieces[0].Metadata["end_char"])
}

func TestSplitter_ExactMultipleDoesNotEmitEmptyTail(t *testing.T) {
	s := newTestSplitter(t, 10, 0)

	pieces := s.Split(strings.Repeat("x", 30))
	require.Len(t, pieces, 3)
	for _, p := range pieces {
		assert.Equal(t, 10, utf8.RuneCountInString(p.Content))
	}
}

func TestSplitter_Properties(t *testing.T) {
	inputs := []string{
		strings.Repeat("lorem ipsum dolor sit amet ", 97),
		strings.Repeat("日本語のテキスト。", 61),
		"a",
		strings.Repeat("z", 1001),
	}
	configs := []Config{{Size: 1000, Overlap: 200}, {Size: 50, Overlap: 7}, {Size: 13, Overlap: 12}, {Size: 5, Overlap: 0}}

	for _, cfg := range configs {
		s := newTestSplitter(t, cfg.Size, cfg.Overlap)
		for _, text := range inputs {
			pieces := s.Split(text)
			require.NotEmpty(t, pieces)

			var rebuilt strings.Builder
			for i, p := range pieces {
				runes := []rune(p.Content)
				assert.LessOrEqual(t, len(runes), cfg.Size)
				assert.Equal(t, i, p.Index)

				if i == 0 {
					rebuilt.WriteString(p.Content)
					continue
				}

				prev := []rune(pieces[i-1].Content)
				assert.Equal(t, string(prev[len(prev)-cfg.Overlap:]), string(runes[:cfg.Overlap]),
					"adjacent chunks must overlap by exactly %d characters", cfg.Overlap)
				rebuilt.WriteString(string(runes[cfg.Overlap:]))
			}
			assert.Equal(t, text, rebuilt.String())
		}
	}
}

func TestSplitter_TokenCount(t *testing.T) {
	s := newTestSplitter(t, 100, 10, WithTokenCounter(wordCounter{}))

	pieces := s.Split("one two three")
	require.Len(t, pieces, 1)
	assert.Equal(t, 3, pieces[0].Metadata["token_count"])
}

func TestNewSplitter_RejectsInvalidConfig(t *testing.T) {
	_, err := NewSplitter(Config{Size: 10, Overlap: 20})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
