// internal/crm/entity.go
//
// CRM entities – shared form plumbing.
//
// Context
//   Each CRM screen (lead, customer, contact, compliance, payment profile,
//   registration) is described by an Entity: its form Definition plus the
//   rules for turning raw inputs into the JSON payload the backend expects.
//   Rule tables are plain Go values compiled into the binary; nothing is read
//   from disk at runtime.
//
// Workflow
//   •  Payload trims every in-scope value and sends blanks as null.
//   •  Fields of a disabled group are sent as null, never omitted, so the
//      backend clears stale credentials on update.
//   •  Raw rules (passwords) skip trimming.  Omit fields (confirmations)
//      never leave the client.
//   •  Secret fields are write-only.  The backend stores a hash and never
//      hands the value back, so edit pre-fill leaves them blank.
//
//------------------------------------------------------------------------------

package crm

import (
	"sort"
	"strings"

	"github.com/yanizio/adept-crm/internal/form"
)

// Shared patterns and messages.
const (
	emailPattern = `[^\s@]+@[^\s@]+\.[^\s@]+`
	phonePattern = `\+?[0-9][0-9 ()\-]{6,19}`
	datePattern  = `\d{4}-\d{2}-\d{2}`

	msgEmail = "Please enter a valid email address"
	msgPhone = "Please enter a valid phone number"
	msgDate  = "Please enter a date as YYYY-MM-DD"
)

// Entity couples a form definition with its payload mapping.
type Entity struct {
	Name    string
	Def     *form.Definition
	Toggles []string // sent as booleans

	// Omit fields never leave the client.  Secret fields are hashed by the
	// backend and never read back.
	Omit   map[string]bool
	Secret map[string]bool

	// Normalize runs after trimming, per field.
	Normalize map[string]func(string) string

	// Typed builds the entity's typed record from form inputs.
	Typed func(form.Values, form.Toggles) any
}

// Payload maps values to the wire shape.  Values must already be valid.
func (e *Entity) Payload(values form.Values, toggles form.Toggles) map[string]any {
	out := make(map[string]any, e.Def.Rules.Len()+len(e.Toggles))
	for _, rule := range e.Def.Rules.Rules() {
		name := rule.Name
		if e.Omit[name] {
			continue
		}
		if !e.Def.InScope(name, toggles) {
			out[name] = nil
			continue
		}
		v := values[name]
		if !rule.Raw {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			out[name] = nil
			continue
		}
		if fn, ok := e.Normalize[name]; ok {
			v = fn(v)
		}
		out[name] = v
	}
	for _, t := range e.Toggles {
		out[t] = toggles[t]
	}
	return out
}

// ValuesFromPayload reverses Payload for edit pre-fill.  Secret fields and
// non-string values other than toggles are ignored.
func (e *Entity) ValuesFromPayload(data map[string]any) (form.Values, form.Toggles) {
	return e.valuesFrom(data, false)
}

// ValidatePayload is the server-side check of a received payload.  Omit
// fields never arrive, so their errors are dropped.
func (e *Entity) ValidatePayload(data map[string]any) (form.Values, form.Toggles, form.Errors) {
	vals, tg := e.valuesFrom(data, true)
	errs := form.ValidateForm(vals, e.Def, tg)
	for name := range e.Omit {
		delete(errs, name)
	}
	return vals, tg, errs
}

// Redact returns a copy of data without Secret fields.
func (e *Entity) Redact(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if !e.Secret[k] {
			out[k] = v
		}
	}
	return out
}

// Record returns the typed record for vals, or vals itself when the entity
// has no typed view.
func (e *Entity) Record(vals form.Values, tg form.Toggles) any {
	if e.Typed == nil {
		return vals
	}
	return e.Typed(vals, tg)
}

func (e *Entity) valuesFrom(data map[string]any, secrets bool) (form.Values, form.Toggles) {
	vals := form.Values{}
	tg := form.Toggles{}
	for _, name := range e.Def.Rules.Names() {
		if e.Secret[name] && !secrets {
			continue
		}
		if s, ok := data[name].(string); ok {
			vals[name] = s
		}
	}
	for _, t := range e.Toggles {
		if b, ok := data[t].(bool); ok {
			tg[t] = b
		}
	}
	return vals, tg
}

// UniqueKey returns the value of the unique field when in scope, else "".
func (e *Entity) UniqueKey(vals form.Values, tg form.Toggles) (field, value string) {
	u, ok := e.Def.UniqueInScope(tg)
	if !ok {
		return "", ""
	}
	return u.Field, vals[u.Field]
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

var entities = map[string]*Entity{}

func register(e *Entity) *Entity {
	if err := e.Def.Validate(); err != nil {
		panic(err)
	}
	entities[e.Name] = e
	return e
}

// Lookup returns the entity by name, e.g. “contact”.
func Lookup(name string) (*Entity, bool) {
	e, ok := entities[name]
	return e, ok
}

// Names returns every entity name, sorted.
func Names() []string {
	out := make([]string, 0, len(entities))
	for n := range entities {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Definitions returns a form registry holding every built-in definition.
func Definitions() *form.Registry {
	r := form.NewRegistry()
	for _, e := range entities {
		r.Register(e.Def)
	}
	r.Register(LoginForm)
	return r
}

func upper(s string) string { return strings.ToUpper(s) }

func compact(s string) string { return strings.ToUpper(strings.ReplaceAll(s, " ", "")) }

func lower(s string) string { return strings.ToLower(s) }
