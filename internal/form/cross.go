// internal/form/cross.go
//
// CRM forms – cross-field rules.
//
// Context
//   Some constraints involve more than one input: a compliance window whose
//   end must not fall before its start, a login email that must differ from
//   the contact email, or a password confirmation.  Each rule names the field
//   it reports against so every error stays attributable to one field.
//
//------------------------------------------------------------------------------

package form

import (
	"strings"
	"time"
)

// CrossRule relates two or more fields.  Check returns the field to report
// against and the message, or two empty strings when the values are fine.
type CrossRule interface {
	Check(v Values) (field, message string)
	Fields() []string
}

// DefaultDateLayout is the wire format of date inputs.
const DefaultDateLayout = "2006-01-02"

// DateOrder requires Later to be on or after Earlier.  A violation is
// reported against Later.  Unparseable or empty dates are left to the field
// rules.
type DateOrder struct {
	Earlier string
	Later   string
	Layout  string // DefaultDateLayout when empty.
	Message string
}

// Check implements CrossRule.
func (r DateOrder) Check(v Values) (string, string) {
	layout := r.Layout
	if layout == "" {
		layout = DefaultDateLayout
	}
	a, okA := parseDate(layout, v[r.Earlier])
	b, okB := parseDate(layout, v[r.Later])
	if !okA || !okB || !b.Before(a) {
		return "", ""
	}
	msg := r.Message
	if msg == "" {
		msg = "End date cannot be before start date"
	}
	return r.Later, msg
}

// Fields implements CrossRule.
func (r DateOrder) Fields() []string { return []string{r.Earlier, r.Later} }

// Distinct requires Field to differ from Other.  Comparison ignores case and
// surrounding space.  A violation is reported against Field.
type Distinct struct {
	Field   string
	Other   string
	Message string
}

// Check implements CrossRule.
func (r Distinct) Check(v Values) (string, string) {
	a := strings.TrimSpace(v[r.Field])
	b := strings.TrimSpace(v[r.Other])
	if a == "" || b == "" || !strings.EqualFold(a, b) {
		return "", ""
	}
	msg := r.Message
	if msg == "" {
		msg = "Value must differ from " + r.Other
	}
	return r.Field, msg
}

// Fields implements CrossRule.
func (r Distinct) Fields() []string { return []string{r.Field, r.Other} }

// Match requires Field to equal Other exactly, e.g. a password confirmation.
type Match struct {
	Field   string
	Other   string
	Message string
}

// Check implements CrossRule.
func (r Match) Check(v Values) (string, string) {
	if v[r.Field] == v[r.Other] {
		return "", ""
	}
	msg := r.Message
	if msg == "" {
		msg = "Values do not match"
	}
	return r.Field, msg
}

// Fields implements CrossRule.
func (r Match) Fields() []string { return []string{r.Field, r.Other} }

func parseDate(layout, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
