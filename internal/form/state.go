// internal/form/state.go
//
// CRM forms – immutable form state.
//
// Context
//   State is the value a host UI renders from: current inputs, toggle
//   switches, per-field errors, and the touched set that gates which errors
//   are shown.  Every update returns a new State and leaves the receiver
//   untouched, so a failed submit can never leave half-applied changes
//   behind.
//
//------------------------------------------------------------------------------

package form

import "maps"

// State is an immutable snapshot of one editing session.  The zero value is
// an empty form.
type State struct {
	values    Values
	toggles   Toggles
	errors    Errors
	touched   map[string]bool
	formError string
}

// NewState returns a State pre-filled with values and toggles, for example
// when editing an existing record.  Inputs are copied.
func NewState(values Values, toggles Toggles) State {
	return State{
		values:  maps.Clone(values),
		toggles: maps.Clone(toggles),
	}
}

// -----------------------------------------------------------------------------
// Readers
// -----------------------------------------------------------------------------

// Value returns the current input for name.
func (s State) Value(name string) string { return s.values[name] }

// Values returns a copy of all inputs.
func (s State) Values() Values {
	out := maps.Clone(s.values)
	if out == nil {
		out = Values{}
	}
	return out
}

// Toggle reports whether the named toggle is on.
func (s State) Toggle(name string) bool { return s.toggles[name] }

// Toggles returns a copy of all toggles.
func (s State) Toggles() Toggles {
	out := maps.Clone(s.toggles)
	if out == nil {
		out = Toggles{}
	}
	return out
}

// Error returns the error recorded for name, if any.
func (s State) Error(name string) (FieldError, bool) {
	fe, ok := s.errors[name]
	return fe, ok
}

// Errors returns a copy of every recorded error, touched or not.
func (s State) Errors() Errors { return s.errors.clone() }

// Touched reports whether the user interacted with name.
func (s State) Touched(name string) bool { return s.touched[name] }

// Visible returns field → message for touched fields only.
func (s State) Visible() map[string]string {
	out := make(map[string]string)
	for k, fe := range s.errors {
		if s.touched[k] {
			out[k] = fe.Message
		}
	}
	return out
}

// FormError returns the form-level banner message, if any.
func (s State) FormError() string { return s.formError }

// Valid reports whether no field or form error is recorded.
func (s State) Valid() bool { return len(s.errors) == 0 && s.formError == "" }

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

// WithValue returns a copy with name set to v.
func (s State) WithValue(name, v string) State {
	s.values = maps.Clone(s.values)
	if s.values == nil {
		s.values = Values{}
	}
	s.values[name] = v
	return s
}

// WithToggle returns a copy with the toggle set.
func (s State) WithToggle(name string, on bool) State {
	s.toggles = maps.Clone(s.toggles)
	if s.toggles == nil {
		s.toggles = Toggles{}
	}
	s.toggles[name] = on
	return s
}

// Touch returns a copy with names marked as touched.
func (s State) Touch(names ...string) State {
	s.touched = maps.Clone(s.touched)
	if s.touched == nil {
		s.touched = make(map[string]bool, len(names))
	}
	for _, n := range names {
		s.touched[n] = true
	}
	return s
}

// WithErrors returns a copy whose field errors are exactly errs.
func (s State) WithErrors(errs Errors) State {
	s.errors = errs.clone()
	return s
}

// WithFieldError returns a copy with fe recorded for name.  An empty message
// clears the entry.
func (s State) WithFieldError(name string, fe FieldError) State {
	s.errors = s.errors.clone()
	if fe.Message == "" {
		delete(s.errors, name)
		return s
	}
	s.errors[name] = fe
	return s
}

// ClearErrors returns a copy without errors for names.
func (s State) ClearErrors(names ...string) State {
	s.errors = s.errors.clone()
	for _, n := range names {
		delete(s.errors, n)
	}
	return s
}

// WithFormError returns a copy with the form-level message set.  "" clears it.
func (s State) WithFormError(msg string) State {
	s.formError = msg
	return s
}
