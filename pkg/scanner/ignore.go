package scanner

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsIgnored checks a slash-separated relative path against ignore
// patterns. Patterns ending in "/" match directories (and thereby their
// whole subtree, since a matched directory is never descended into);
// other patterns match files and directories alike. Invalid patterns
// never match; ValidatePatterns rejects them up front.
func IsIgnored(relPath string, isDir bool, patterns []string) bool {
	for _, pattern := range patterns {
		if dirPattern, ok := strings.CutSuffix(pattern, "/"); ok {
			if !isDir {
				continue
			}
			if matched, _ := doublestar.Match(dirPattern, relPath); matched {
				return true
			}
			continue
		}
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}

// ValidatePatterns reports the first syntactically invalid pattern.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		p := strings.TrimSuffix(pattern, "/")
		if !doublestar.ValidatePattern(p) {
			return &PatternError{Pattern: pattern}
		}
	}
	return nil
}

// PatternError reports a malformed ignore pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid ignore pattern: " + e.Pattern
}
