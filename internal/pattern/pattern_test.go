package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileErrors(t *testing.T) {
	_, err := Compile("", false, true)
	assert.ErrorIs(t, err, ErrEmptyPattern)

	_, err = Compile("(unbalanced", true, true)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	// A literal pattern is never a compile error, whatever it contains.
	_, err = Compile("(unbalanced", false, true)
	assert.NoError(t, err)
}

func TestLiteralMatching(t *testing.T) {
	tests := []struct {
		name          string
		pattern       string
		caseSensitive bool
		line          string
		want          []Span
	}{
		{
			name:          "single occurrence",
			pattern:       "foo",
			caseSensitive: true,
			line:          "a foo b",
			want:          []Span{{2, 5}},
		},
		{
			name:          "multiple non-overlapping",
			pattern:       "aa",
			caseSensitive: true,
			line:          "aaaa",
			want:          []Span{{0, 2}, {2, 4}},
		},
		{
			name:          "case sensitive miss",
			pattern:       "Foo",
			caseSensitive: true,
			line:          "foo bar",
			want:          nil,
		},
		{
			name:          "case insensitive hit",
			pattern:       "Foo",
			caseSensitive: false,
			line:          "foo bar",
			want:          []Span{{0, 3}},
		},
		{
			name:          "case insensitive non-overlapping",
			pattern:       "AA",
			caseSensitive: false,
			line:          "aAaA",
			want:          []Span{{0, 2}, {2, 4}},
		},
		{
			name:          "metacharacters stay literal when folding",
			pattern:       "a.b",
			caseSensitive: false,
			line:          "A.B axb",
			want:          []Span{{0, 3}},
		},
		{
			name:          "no match",
			pattern:       "xyz",
			caseSensitive: true,
			line:          "abc",
			want:          nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.pattern, false, tt.caseSensitive)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.FindSpans(tt.line))
		})
	}
}

// A fold that changes rune width (U+0130 is 2 bytes, its lowercase 1) must
// not shift the reported offsets: spans index the raw line.
func TestLiteralFoldSpansIndexRawLine(t *testing.T) {
	m, err := Compile("FOO", false, false)
	require.NoError(t, err)

	line := "İ foo"
	spans := m.FindSpans(line)
	require.Equal(t, []Span{{3, 6}}, spans)
	assert.Equal(t, "foo", line[spans[0].Start:spans[0].End])
}

func TestRegexMatching(t *testing.T) {
	tests := []struct {
		name          string
		pattern       string
		caseSensitive bool
		line          string
		want          []Span
	}{
		{
			name:          "anchored error code",
			pattern:       `^ERR\d+`,
			caseSensitive: true,
			line:          "ERR42: failure",
			want:          []Span{{0, 5}},
		},
		{
			name:          "anchor rejects mid-line",
			pattern:       `^ERR\d+`,
			caseSensitive: true,
			line:          "WARN ERR42",
			want:          nil,
		},
		{
			name:          "case insensitive flag",
			pattern:       `err\d+`,
			caseSensitive: false,
			line:          "saw ERR42 and err7",
			want:          []Span{{4, 9}, {14, 18}},
		},
		{
			name:          "leftmost-first non-overlapping",
			pattern:       `a+`,
			caseSensitive: true,
			line:          "aa b aaa",
			want:          []Span{{0, 2}, {5, 8}},
		},
		{
			name:          "zero-width matches dropped",
			pattern:       `x*`,
			caseSensitive: true,
			line:          "abc",
			want:          nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.pattern, true, tt.caseSensitive)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.FindSpans(tt.line))
		})
	}
}
