// Package ignore decides which paths a scan should never visit: version
// control metadata, dependency and build output directories, and anything
// matched by the workspace's gitignore-style files.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// defaultSkipDirs are directory names skipped regardless of ignore files.
// They hold version-control data, dependencies, or generated output that a
// text search over tracked files should not see.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// Set holds the exclusion rules for one scan.
type Set struct {
	patterns []string
}

// Load reads the named gitignore-style files from root and combines their
// patterns into a Set. Missing files are skipped silently.
func Load(root string, ignoreFiles []string) (*Set, error) {
	var patterns []string
	for _, name := range ignoreFiles {
		filePatterns, err := parseFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}
	return &Set{patterns: deduplicate(patterns)}, nil
}

// NewSet builds a Set from pre-parsed glob patterns, mainly for tests.
func NewSet(patterns []string) *Set {
	return &Set{patterns: deduplicate(patterns)}
}

// SkipDir reports whether a directory with the given base name should be
// pruned from traversal entirely.
func (s *Set) SkipDir(name string) bool {
	return defaultSkipDirs[name]
}

// Match reports whether the slash-separated path relative to the scan root
// is excluded.
func (s *Set) Match(relPath string) bool {
	if s == nil {
		return false
	}
	base := filepath.Base(relPath)
	for _, pattern := range s.patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		// filepath.Match has no recursive wildcard, so handle the
		// "dir/**" form by prefix.
		if strings.Contains(pattern, "**") {
			prefix := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
			if prefix != "" && prefix != pattern {
				if relPath == prefix || strings.HasPrefix(relPath, prefix+"/") ||
					strings.Contains(relPath, "/"+prefix+"/") {
					return true
				}
			}
		}
	}
	return false
}

// parseFile reads a single gitignore-style file and returns glob patterns.
func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseLine parses one gitignore line into a glob pattern.
// Returns empty string for blanks, comments, and negations (unsupported).
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to a glob pattern.
func toGlobPattern(pattern string) string {
	// A leading slash anchors to the root; relative paths already are.
	pattern = strings.TrimPrefix(pattern, "/")

	// Trailing slash marks a directory.
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	// A bare name can match anywhere in the tree.
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		pattern = "**/" + pattern
	}

	// Extension-less names are treated as directories and matched
	// recursively, e.g. "node_modules" -> "**/node_modules/**".
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}

	return pattern
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
