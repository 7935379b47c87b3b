package gitsync

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/docscout/docscout/internal/errors"
)

// PatternMatcher applies include and exclude globs to repository paths.
// A path passes when it matches at least one include (or none are
// configured) and no exclude.
type PatternMatcher struct {
	include []string
	exclude []string
}

// NewPatternMatcher validates the globs and builds a matcher.
func NewPatternMatcher(include, exclude []string) (*PatternMatcher, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Newf(errors.KindValidation, "invalid glob pattern %q", p)
		}
	}
	return &PatternMatcher{include: include, exclude: exclude}, nil
}

// Match reports whether the path should be processed.
func (m *PatternMatcher) Match(path string) bool {
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, path); ok {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}
