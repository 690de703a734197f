// internal/form/rule.go
//
// CRM forms – declarative field rules.
//
// Context
//   Every CRM form (lead, customer, contact, compliance, payment profile)
//   declares one FieldRule per input.  A RuleTable keeps those rules in
//   declaration order so validation output is deterministic, and rejects
//   tables that break the structural invariants at construction time rather
//   than at submit time.
//
// Workflow
//   •  NewRuleTable checks names, bounds, and patterns, then compiles every
//      pattern once.
//   •  Patterns are evaluated as a FULL match.  Authors write `[0-9]{4}`, not
//      `^[0-9]{4}$`.
//   •  ValidateField (validate.go) may also be called with a bare FieldRule;
//      compiled patterns are cached per expression.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FieldRule is the constraint set for one form field.
type FieldRule struct {
	Name      string // Submission key.  Unique within a table.
	Label     string // Human-readable label, optional.
	Required  bool   // Trimmed value must be non-empty.
	MinLength int    // ≥ 0, 0 means unset.
	MaxLength int    // ≥ 0, 0 means unset.
	Pattern   string // Full-match regular expression, optional.
	Message   string // Returned when Pattern fails.  Mandatory with Pattern.
	Raw       bool   // Bounds and pattern see the untrimmed value, e.g. passwords.
}

// RuleTable is an ordered, validated set of FieldRules.  Zero value is an
// empty table.
type RuleTable struct {
	rules []FieldRule
	index map[string]int
}

// ErrEmptyName is returned when a rule has no field name.
var ErrEmptyName = errors.New("form: field rule missing name")

// NewRuleTable validates rules and returns them as a table.  The first
// structural problem is returned.
func NewRuleTable(rules ...FieldRule) (*RuleTable, error) {
	t := &RuleTable{
		rules: make([]FieldRule, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}
	for _, r := range rules {
		if err := checkRule(r); err != nil {
			return nil, err
		}
		if _, dup := t.index[r.Name]; dup {
			return nil, fmt.Errorf("form: duplicate field name %q", r.Name)
		}
		t.index[r.Name] = len(t.rules)
		t.rules = append(t.rules, r)
	}
	return t, nil
}

// MustRuleTable is NewRuleTable for static tables declared at package level.
// It panics on an invalid table.
func MustRuleTable(rules ...FieldRule) *RuleTable {
	t, err := NewRuleTable(rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rule returns the rule for name.
func (t *RuleTable) Rule(name string) (FieldRule, bool) {
	if t == nil {
		return FieldRule{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return FieldRule{}, false
	}
	return t.rules[i], true
}

// Has reports whether the table declares name.
func (t *RuleTable) Has(name string) bool {
	_, ok := t.Rule(name)
	return ok
}

// Rules returns a copy of the rules in declaration order.
func (t *RuleTable) Rules() []FieldRule {
	if t == nil {
		return nil
	}
	out := make([]FieldRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Names returns field names in declaration order.
func (t *RuleTable) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Name
	}
	return out
}

// Len reports the number of rules.
func (t *RuleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// checkRule enforces the invariants a rule must satisfy on its own.
func checkRule(r FieldRule) error {
	if r.Name == "" {
		return ErrEmptyName
	}
	if r.MinLength < 0 || r.MaxLength < 0 {
		return fmt.Errorf("form: field %q minlength/maxlength cannot be negative", r.Name)
	}
	if r.MaxLength > 0 && r.MinLength > r.MaxLength {
		return fmt.Errorf("form: field %q minlength greater than maxlength", r.Name)
	}
	if r.Pattern != "" {
		if r.Message == "" {
			return fmt.Errorf("form: field %q has a pattern but no message", r.Name)
		}
		if _, err := compilePattern(r.Pattern); err != nil {
			return fmt.Errorf("form: field %q invalid pattern: %w", r.Name, err)
		}
	}
	return nil
}

// patterns caches compiled, anchored expressions keyed by the raw pattern.
var patterns sync.Map

// compilePattern anchors p for a full match and caches the result.
func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + p + `)$`)
	if err != nil {
		return nil, err
	}
	patterns.Store(p, re)
	return re, nil
}
