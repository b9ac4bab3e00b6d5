// Package filter decides which candidate titles are worth archiving.
//
// Patterns use regexp2 rather than regexp so that configurations written for Python's re module (lookbehind,
// backreferences) keep working.
package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/hashicorp/go-multierror"
)

var (
	ErrNoPatterns = errors.New("at least one filter pattern is required")
)

// MatchTimeout bounds the time spent on a single pattern against a single title.
const MatchTimeout = time.Second

// A Set is a compiled, ordered list of patterns. A title matches the Set if any pattern matches it.
type Set struct {
	patterns []*regexp2.Regexp
}

// Compile compiles every pattern, reporting all of the invalid ones.
func Compile(patterns []string) (*Set, error) {
	var result error
	set := &Set{patterns: make([]*regexp2.Regexp, 0, len(patterns))}
	for i, p := range patterns {
		re, err := regexp2.Compile(p, regexp2.None)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("pattern %d %q: %w", i, p, err))
			continue
		}
		re.MatchTimeout = MatchTimeout
		set.patterns = append(set.patterns, re)
	}
	if result != nil {
		return nil, result
	}
	return set, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(patterns ...string) *Set {
	set, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return set
}

// Validate checks that patterns is non-empty and every pattern compiles.
func Validate(patterns []string) error {
	if len(patterns) == 0 {
		return ErrNoPatterns
	}
	_, err := Compile(patterns)
	return err
}

func (s *Set) Len() int {
	return len(s.patterns)
}

// Match returns true as soon as one pattern finds a match anywhere in title. A pattern that fails (a match timeout)
// counts as no match and the remaining patterns are still tried; the failures are returned only if nothing matched.
// An empty Set matches nothing.
func (s *Set) Match(title string) (bool, error) {
	var result error
	for _, re := range s.patterns {
		ok, err := re.MatchString(title)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("pattern %q: %w", re.String(), err))
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, result
}

// Matches compiles filters and matches title against them in one step.
func Matches(filters []string, title string) (bool, error) {
	set, err := Compile(filters)
	if err != nil {
		return false, err
	}
	return set.Match(title)
}
