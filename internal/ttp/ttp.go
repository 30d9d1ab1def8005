// Package ttp implements the Pattern Store and its detector: weighted
// behavioral patterns (tactics, techniques, procedures) expressed as
// conjunctions of field tests over a log record.
package ttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quorum-project/quorum/pkg/errclass"
)

// Test operators. Comparisons are case-sensitive; patterns that want
// case folding say so in the regex ((?i)...).
const (
	OpEquals   = "equals"
	OpContains = "contains"
	OpRegex    = "regex"
)

// Document is the JSON payload shape for the pattern store.
type Document struct {
	Version  string    `json:"version,omitempty"`
	Patterns []Pattern `json:"patterns"`
}

// Pattern is one authored behavioral signature. All tests must match
// (conjunction) for the pattern to fire.
type Pattern struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Tactic    string   `json:"tactic,omitempty"`
	Technique string   `json:"technique,omitempty"`
	// Weight becomes the finding score; nil defaults to 1.0.
	Weight *float64 `json:"weight,omitempty"`
	Tests  []Test   `json:"tests"`
}

// Test is one field predicate inside a pattern.
type Test struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

type compiledTest struct {
	Test
	re *regexp.Regexp
}

type compiledPattern struct {
	id        string
	name      string
	tactic    string
	technique string
	weight    float64
	tests     []compiledTest
}

// Set is a compiled, immutable pattern store version. Regexes are
// compiled here, once, so evaluation never fails on syntax.
type Set struct {
	version  string
	patterns []compiledPattern
}

// Compile parses and validates a raw pattern payload. Pattern IDs must be
// unique; regex tests must compile; weights must lie in (0, 1].
func Compile(payload []byte) (*Set, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("pattern payload is not valid JSON: %v", err)
	}

	s := &Set{version: doc.Version, patterns: make([]compiledPattern, 0, len(doc.Patterns))}
	seen := make(map[string]struct{}, len(doc.Patterns))

	for i, p := range doc.Patterns {
		if p.ID == "" {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("pattern %d has no id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("duplicate pattern id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Name == "" {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("pattern %q has no name", p.ID)
		}
		if len(p.Tests) == 0 {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("pattern %q has no tests", p.ID)
		}

		weight := 1.0
		if p.Weight != nil {
			weight = *p.Weight
			if weight <= 0 || weight > 1 {
				return nil, errclass.ErrPayloadInvalid.WithMessagef(
					"pattern %q weight %v is outside (0, 1]", p.ID, weight)
			}
		}

		cp := compiledPattern{
			id:        p.ID,
			name:      p.Name,
			tactic:    p.Tactic,
			technique: p.Technique,
			weight:    weight,
			tests:     make([]compiledTest, 0, len(p.Tests)),
		}
		for _, tst := range p.Tests {
			ct, err := compileTest(p.ID, tst)
			if err != nil {
				return nil, err
			}
			cp.tests = append(cp.tests, ct)
		}
		s.patterns = append(s.patterns, cp)
	}
	return s, nil
}

func compileTest(patternID string, tst Test) (compiledTest, error) {
	if tst.Field == "" {
		return compiledTest{}, errclass.ErrPayloadInvalid.WithMessagef(
			"pattern %q has a test with no field", patternID)
	}
	switch tst.Op {
	case OpEquals, OpContains:
		return compiledTest{Test: tst}, nil
	case OpRegex:
		re, err := regexp.Compile(tst.Value)
		if err != nil {
			return compiledTest{}, errclass.ErrPayloadInvalid.WithMessagef(
				"pattern %q test on %q: bad regex: %v", patternID, tst.Field, err)
		}
		return compiledTest{Test: tst, re: re}, nil
	}
	return compiledTest{}, errclass.ErrPayloadInvalid.WithMessagef(
		"pattern %q test on %q has unknown op %q", patternID, tst.Field, tst.Op)
}

// Version returns the payload-declared version string, if any.
func (s *Set) Version() string { return s.version }

// Len returns the number of compiled patterns.
func (s *Set) Len() int { return len(s.patterns) }

func (ct *compiledTest) match(value string) bool {
	switch ct.Op {
	case OpEquals:
		return value == ct.Value
	case OpContains:
		return strings.Contains(value, ct.Value)
	case OpRegex:
		return ct.re.MatchString(value)
	}
	return false
}

func (ct *compiledTest) String() string {
	return fmt.Sprintf("%s %s %q", ct.Field, ct.Op, ct.Value)
}
