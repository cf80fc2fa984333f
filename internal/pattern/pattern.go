// Package pattern compiles search patterns into line matchers.
//
// Literal patterns match as exact substrings; case-insensitive literal
// matching uses the regex engine's Unicode case folding over a quoted
// pattern. Regex patterns are compiled once up front so a malformed
// expression is rejected before any file I/O; case-insensitivity uses the
// engine's (?i) flag.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Common errors.
var (
	// ErrEmptyPattern indicates an empty pattern string.
	ErrEmptyPattern = errors.New("pattern cannot be empty")

	// ErrInvalidPattern indicates a regex that failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Span is a half-open [Start,End) byte range within a line.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Matcher reports where a pattern matches within a single line.
type Matcher interface {
	// FindSpans returns every non-overlapping match on line, left to
	// right, or nil when the line does not match.
	FindSpans(line string) []Span
}

// Compile turns a raw pattern plus flags into a Matcher.
func Compile(raw string, isRegex, caseSensitive bool) (Matcher, error) {
	if raw == "" {
		return nil, ErrEmptyPattern
	}

	if !isRegex {
		if caseSensitive {
			return &literalMatcher{needle: raw}, nil
		}
		// Spans must land on the raw line, and folding a copy with
		// strings.ToLower shifts byte offsets whenever a fold changes rune
		// width (U+0130 folds 2 bytes to 1). The regex engine folds in
		// place, so a quoted literal under (?i) reports raw offsets.
		return &regexMatcher{re: regexp.MustCompile("(?i)" + regexp.QuoteMeta(raw))}, nil
	}

	expr := raw
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &regexMatcher{re: re}, nil
}

// literalMatcher finds non-overlapping case-sensitive substring
// occurrences.
type literalMatcher struct {
	needle string
}

func (m *literalMatcher) FindSpans(line string) []Span {
	var spans []Span
	offset := 0
	for {
		i := strings.Index(line[offset:], m.needle)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(m.needle)
		spans = append(spans, Span{Start: start, End: end})
		offset = end
	}
	return spans
}

// regexMatcher applies a compiled regexp with the engine's leftmost-first,
// non-overlapping semantics.
type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) FindSpans(line string) []Span {
	idx := m.re.FindAllStringIndex(line, -1)
	if idx == nil {
		return nil
	}
	spans := make([]Span, 0, len(idx))
	for _, pair := range idx {
		// Zero-width matches (e.g. pattern "x*") carry no useful span.
		if pair[0] == pair[1] {
			continue
		}
		spans = append(spans, Span{Start: pair[0], End: pair[1]})
	}
	if len(spans) == 0 {
		return nil
	}
	return spans
}
