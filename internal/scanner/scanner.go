// Package scanner walks a directory tree and applies a compiled matcher to
// every text file's lines.
//
// Files are scanned by a bounded worker pool, but the output is
// deterministic: matches are buffered per file and the final sequence is
// sorted by path, with line matches in ascending line order. A file that
// cannot be evaluated (unreadable, binary, oversize) is counted and
// skipped; it never aborts the scan.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/wsgrep/internal/ignore"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
	"github.com/fyrsmithlabs/wsgrep/internal/pattern"
)

// LineMatch is one matching line within a file.
type LineMatch struct {
	// Number is the 1-based line number.
	Number int `json:"line"`

	// Text is the raw line without its terminator.
	Text string `json:"text"`

	// Spans are the non-overlapping match ranges within Text.
	Spans []pattern.Span `json:"spans"`
}

// FileMatch is the ordered set of matching lines in one file.
type FileMatch struct {
	// Path is slash-separated and relative to the scan root.
	Path string `json:"path"`

	Lines []LineMatch `json:"lines"`
}

// Result aggregates one completed scan.
type Result struct {
	// Files is sorted ascending by Path. Files without matches are absent.
	Files []FileMatch `json:"files"`

	// ScannedFiles counts every file opened and tested, matched or not.
	ScannedFiles int `json:"scanned_files"`

	// SkippedFiles counts files that could not be evaluated.
	SkippedFiles int `json:"skipped_files"`
}

// MatchedLineCount returns the total matching lines across all files.
func (r *Result) MatchedLineCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Lines)
	}
	return n
}

// Options configures a Scanner.
type Options struct {
	// Workers bounds concurrent file scans. Values < 1 mean 1.
	Workers int

	// MaxFileSize in bytes; larger files count as skipped. 0 disables the
	// limit.
	MaxFileSize int64

	// Exclude holds ignore rules; excluded paths are not visited and are
	// not counted at all.
	Exclude *ignore.Set
}

// Scanner applies a matcher across a file tree.
type Scanner struct {
	opts   Options
	logger *logging.Logger
}

// New creates a Scanner.
func New(opts Options, logger *logging.Logger) *Scanner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{opts: opts, logger: logger.Named("scanner")}
}

// candidate is a file selected by traversal, pending content evaluation.
type candidate struct {
	abs string
	rel string
}

// Scan walks root and returns all matches for m.
//
// Traversal is lexicographic, symbolic links are not followed, and only
// regular files are considered. A cancelled ctx stops the scan between
// files and discards partial results.
func (s *Scanner) Scan(ctx context.Context, root string, m pattern.Matcher) (*Result, error) {
	result := &Result{}

	candidates, err := s.collect(ctx, root, result)
	if err != nil {
		return nil, err
	}

	// Single aggregation point for all workers. Everything a worker
	// produces lands here under one lock; nothing else is shared.
	var agg struct {
		sync.Mutex
		files   []FileMatch
		scanned int
		skipped int
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, c := range candidates {
		// Cooperative cancellation between files: no new file is opened
		// once the context is done.
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			match, ok := s.scanFile(c, m)
			agg.Lock()
			if ok {
				agg.scanned++
				if match != nil {
					agg.files = append(agg.files, *match)
				}
			} else {
				agg.skipped++
			}
			agg.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled after the last worker finished; partial results are
		// still discarded.
		return nil, err
	}

	// Workers complete in arbitrary order; restore path order here.
	sort.Slice(agg.files, func(i, j int) bool { return agg.files[i].Path < agg.files[j].Path })

	result.Files = agg.files
	result.ScannedFiles = agg.scanned
	result.SkippedFiles += agg.skipped

	s.logger.Debug("scan finished",
		zap.String("root", root),
		zap.Int("matched_files", len(result.Files)),
		zap.Int("scanned", result.ScannedFiles),
		zap.Int("skipped", result.SkippedFiles))

	return result, nil
}

// collect walks the tree and returns the files worth opening. Unreadable
// directories and oversize files are recorded as skipped on result.
func (s *Scanner) collect(ctx context.Context, root string, result *Result) ([]candidate, error) {
	var candidates []candidate

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// A subtree we cannot read is a partial failure, not a fatal
			// one, unless it is the root itself.
			if path == root {
				return walkErr
			}
			result.SkippedFiles++
			s.logger.Trace("unreadable entry", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && s.opts.Exclude.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed: a link cycle would never terminate.
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if s.opts.Exclude.Match(rel) {
			return nil
		}

		if s.opts.MaxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				result.SkippedFiles++
				return nil
			}
			if info.Size() > s.opts.MaxFileSize {
				result.SkippedFiles++
				s.logger.Trace("oversize file skipped", zap.String("path", rel), zap.Int64("size", info.Size()))
				return nil
			}
		}

		candidates = append(candidates, candidate{abs: path, rel: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// scanFile evaluates one file. ok is false when the file could not be
// evaluated; match is nil when it was evaluated but nothing matched.
func (s *Scanner) scanFile(c candidate, m pattern.Matcher) (match *FileMatch, ok bool) {
	content, err := os.ReadFile(c.abs)
	if err != nil {
		// Permission denied or vanished mid-scan.
		s.logger.Trace("unreadable file", zap.String("path", c.rel), zap.Error(err))
		return nil, false
	}

	if !utf8.Valid(content) {
		s.logger.Trace("binary file skipped", zap.String("path", c.rel))
		return nil, false
	}

	var lines []LineMatch
	for i, line := range splitLines(string(content)) {
		spans := m.FindSpans(line)
		if len(spans) == 0 {
			continue
		}
		lines = append(lines, LineMatch{Number: i + 1, Text: line, Spans: spans})
	}

	if len(lines) == 0 {
		return nil, true
	}
	return &FileMatch{Path: c.rel, Lines: lines}, true
}

// splitLines splits file content into lines. A trailing newline does not
// produce a final empty line; CRLF endings lose the CR.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
