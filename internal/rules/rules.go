// Package rules implements the Rule Store and its detector: authored
// detection rules whose condition is a small expression tree of field
// predicates. The tree is plain data walked recursively; there is no
// scripting engine to sandbox.
package rules

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/quorum-project/quorum/pkg/errclass"
)

// Leaf operators. String comparisons are case-sensitive; the numeric
// operators parse the record field as a float and never match when the
// field is not numeric.
const (
	OpEquals   = "equals"
	OpContains = "contains"
	OpRegex    = "regex"
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
)

// Document is the JSON payload shape for the rule store.
type Document struct {
	Version string `json:"version,omitempty"`
	Rules   []Rule `json:"rules"`
}

// Rule is one authored detection rule.
type Rule struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	// Weight becomes the finding score and must lie in (0, 1].
	Weight *float64 `json:"weight"`
	Where  Expr     `json:"where"`
}

// Expr is one node of a rule condition: exactly one of the composite
// forms (all, any, not) or a leaf predicate (field, op, value).
type Expr struct {
	All   []Expr          `json:"all,omitempty"`
	Any   []Expr          `json:"any,omitempty"`
	Not   *Expr           `json:"not,omitempty"`
	Field string          `json:"field,omitempty"`
	Op    string          `json:"op,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Set is a compiled, immutable rule store version.
type Set struct {
	version string
	rules   []compiledRule
}

type compiledRule struct {
	id     string
	title  string
	tags   []string
	weight float64
	where  node
}

// Compile parses and validates a raw rule payload. Rule IDs must be
// unique, weights in (0, 1], and every expression node well-formed.
func Compile(payload []byte) (*Set, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("rule payload is not valid JSON: %v", err)
	}

	s := &Set{version: doc.Version, rules: make([]compiledRule, 0, len(doc.Rules))}
	seen := make(map[string]struct{}, len(doc.Rules))

	for i, r := range doc.Rules {
		if r.ID == "" {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("rule %d has no id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Title == "" {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("rule %q has no title", r.ID)
		}
		if r.Weight == nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("rule %q has no weight", r.ID)
		}
		if *r.Weight <= 0 || *r.Weight > 1 {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"rule %q weight %v is outside (0, 1]", r.ID, *r.Weight)
		}

		where, err := compileExpr(r.ID, r.Where)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, compiledRule{
			id:     r.ID,
			title:  r.Title,
			tags:   r.Tags,
			weight: *r.Weight,
			where:  where,
		})
	}
	return s, nil
}

// Version returns the payload-declared version string, if any.
func (s *Set) Version() string { return s.version }

// Len returns the number of compiled rules.
func (s *Set) Len() int { return len(s.rules) }

type node interface {
	eval(field func(string) (string, bool)) bool
}

type allNode []node

func (n allNode) eval(field func(string) (string, bool)) bool {
	for _, child := range n {
		if !child.eval(field) {
			return false
		}
	}
	return true
}

type anyNode []node

func (n anyNode) eval(field func(string) (string, bool)) bool {
	for _, child := range n {
		if child.eval(field) {
			return true
		}
	}
	return false
}

type notNode struct{ child node }

func (n notNode) eval(field func(string) (string, bool)) bool {
	return !n.child.eval(field)
}

type leafNode struct {
	field string
	op    string
	str   string
	num   float64
	re    *regexp.Regexp
}

func (n *leafNode) eval(field func(string) (string, bool)) bool {
	value, ok := field(n.field)
	if !ok {
		return false
	}
	switch n.op {
	case OpEquals:
		return value == n.str
	case OpContains:
		return strings.Contains(value, n.str)
	case OpRegex:
		return n.re.MatchString(value)
	}
	got, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false
	}
	switch n.op {
	case OpEq:
		return got == n.num
	case OpNe:
		return got != n.num
	case OpGt:
		return got > n.num
	case OpGte:
		return got >= n.num
	case OpLt:
		return got < n.num
	case OpLte:
		return got <= n.num
	}
	return false
}

func compileExpr(ruleID string, e Expr) (node, error) {
	forms := 0
	if e.All != nil {
		forms++
	}
	if e.Any != nil {
		forms++
	}
	if e.Not != nil {
		forms++
	}
	leaf := e.Field != "" || e.Op != "" || e.Value != nil
	if leaf {
		forms++
	}
	if forms != 1 {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"rule %q has a node that is not exactly one of all/any/not/predicate", ruleID)
	}

	switch {
	case e.All != nil:
		if len(e.All) == 0 {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("rule %q has an empty all node", ruleID)
		}
		children, err := compileChildren(ruleID, e.All)
		if err != nil {
			return nil, err
		}
		return allNode(children), nil
	case e.Any != nil:
		if len(e.Any) == 0 {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("rule %q has an empty any node", ruleID)
		}
		children, err := compileChildren(ruleID, e.Any)
		if err != nil {
			return nil, err
		}
		return anyNode(children), nil
	case e.Not != nil:
		child, err := compileExpr(ruleID, *e.Not)
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	}
	return compileLeaf(ruleID, e)
}

func compileChildren(ruleID string, exprs []Expr) ([]node, error) {
	children := make([]node, 0, len(exprs))
	for _, child := range exprs {
		n, err := compileExpr(ruleID, child)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	return children, nil
}

func compileLeaf(ruleID string, e Expr) (node, error) {
	if e.Field == "" {
		return nil, errclass.ErrPayloadInvalid.WithMessagef("rule %q has a predicate with no field", ruleID)
	}
	n := &leafNode{field: e.Field, op: e.Op}
	switch e.Op {
	case OpEquals, OpContains, OpRegex:
		if err := json.Unmarshal(e.Value, &n.str); err != nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"rule %q predicate on %q needs a string value", ruleID, e.Field)
		}
		if e.Op == OpRegex {
			re, err := regexp.Compile(n.str)
			if err != nil {
				return nil, errclass.ErrPayloadInvalid.WithMessagef(
					"rule %q predicate on %q: bad regex: %v", ruleID, e.Field, err)
			}
			n.re = re
		}
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if err := unmarshalNumber(e.Value, &n.num); err != nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef(
				"rule %q predicate on %q needs a numeric value", ruleID, e.Field)
		}
	case "":
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"rule %q predicate on %q has no op", ruleID, e.Field)
	default:
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"rule %q predicate on %q has unknown op %q", ruleID, e.Field, e.Op)
	}
	return n, nil
}

// unmarshalNumber accepts a JSON number or a numeric string, so authors
// can write 4624 or "4624" interchangeably.
func unmarshalNumber(raw json.RawMessage, out *float64) error {
	if err := json.Unmarshal(raw, out); err == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*out = v
	return nil
}
