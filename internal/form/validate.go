// internal/form/validate.go
//
// CRM forms – field and cross-field validation.
//
// Context
//   Validation runs twice per field in a normal session: on blur, so the user
//   sees the problem inline, and again on submit, where every in-scope field
//   is re-checked before anything touches the network.  The same functions
//   run server side in internal/api so both ends agree on the messages.
//
// Workflow
//   •  ValidateField checks required, minimum length, maximum length, and
//      pattern in that order and returns the first failure.
//   •  ValidateForm applies ValidateField to every in-scope field, then the
//      cross-field rules.  A field keeps at most one error and cross rules
//      never overwrite a field-level error.
//   •  Callers wrap non-empty results in *ValidationError and treat it as a
//      user error, not a 500.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// -----------------------------------------------------------------------------
// Value and error types
// -----------------------------------------------------------------------------

// Values maps field name → raw input.
type Values map[string]string

// Toggles maps toggle name → on/off, e.g. “login_enabled”.
type Toggles map[string]bool

// Source attributes a field error to exactly one origin.
type Source int

const (
	SourceRule Source = iota + 1
	SourceCrossField
	SourceAsync
	SourceServer
)

func (s Source) String() string {
	switch s {
	case SourceRule:
		return "rule"
	case SourceCrossField:
		return "cross_field"
	case SourceAsync:
		return "async"
	case SourceServer:
		return "server"
	default:
		return "unknown"
	}
}

// FieldError is a user-facing message and where it came from.
type FieldError struct {
	Message string
	Source  Source
}

// Errors maps field name → FieldError.  Only non-empty entries are stored.
type Errors map[string]FieldError

// Messages flattens e to field → message.
func (e Errors) Messages() map[string]string {
	if len(e) == 0 {
		return nil
	}
	out := make(map[string]string, len(e))
	for k, v := range e {
		out[k] = v.Message
	}
	return out
}

// Fields returns the field names with errors, sorted.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e Errors) clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ValidationError carries field errors and an optional form-level message.
//
// It lets callers distinguish user input errors from system failures via
// errors.As or IsValidationError.
type ValidationError struct {
	Fields Errors
	Form   string
}

func (ve *ValidationError) Error() string {
	if len(ve.Fields) == 0 && ve.Form != "" {
		return "form validation failed: " + ve.Form
	}
	return fmt.Sprintf("form validation failed: %s", strings.Join(ve.Fields.Fields(), ", "))
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

const msgRequired = "This field is required"

func minMsg(n int) string { return fmt.Sprintf("Minimum %d characters required", n) }
func maxMsg(n int) string { return fmt.Sprintf("Maximum %d characters allowed", n) }

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// ValidateField evaluates value against rule and returns the error message,
// or "" when the value is valid.  Surrounding space is ignored unless the
// rule is Raw.  A blank value is checked for Required only; an empty
// optional value is always valid.
func ValidateField(rule FieldRule, value string) string {
	if strings.TrimSpace(value) == "" {
		if rule.Required {
			return msgRequired
		}
		return ""
	}

	val := value
	if !rule.Raw {
		val = strings.TrimSpace(value)
	}
	n := utf8.RuneCountInString(val)
	if rule.MinLength > 0 && n < rule.MinLength {
		return minMsg(rule.MinLength)
	}
	if rule.MaxLength > 0 && n > rule.MaxLength {
		return maxMsg(rule.MaxLength)
	}
	if rule.Pattern != "" {
		re, err := compilePattern(rule.Pattern)
		if err != nil || !re.MatchString(val) {
			return rule.Message
		}
	}
	return ""
}

// ValidateForm validates every in-scope field of d, then its cross-field
// rules.  The result holds only failing fields; an empty map means valid.
func ValidateForm(values Values, d *Definition, toggles Toggles) Errors {
	errs := make(Errors)
	for _, rule := range d.Rules.Rules() {
		if !d.InScope(rule.Name, toggles) {
			continue
		}
		if msg := ValidateField(rule, values[rule.Name]); msg != "" {
			errs[rule.Name] = FieldError{Message: msg, Source: SourceRule}
		}
	}

	for _, c := range d.Cross {
		if !crossInScope(c, d, toggles, errs) {
			continue
		}
		field, msg := c.Check(values)
		if field == "" || msg == "" {
			continue
		}
		if _, taken := errs[field]; taken {
			continue
		}
		errs[field] = FieldError{Message: msg, Source: SourceCrossField}
	}
	return errs
}

// ValidateOne returns the error for a single field under the full rule set,
// including cross-field rules that report against it.  Used on blur.
func ValidateOne(field string, values Values, d *Definition, toggles Toggles) (FieldError, bool) {
	errs := ValidateForm(values, d, toggles)
	fe, ok := errs[field]
	return fe, ok
}

// crossInScope is true when every field of c is in scope and none already
// failed its own rule.
func crossInScope(c CrossRule, d *Definition, toggles Toggles, errs Errors) bool {
	for _, f := range c.Fields() {
		if !d.InScope(f, toggles) {
			return false
		}
		if _, bad := errs[f]; bad {
			return false
		}
	}
	return true
}
