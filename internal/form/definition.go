// internal/form/definition.go
//
// CRM forms – form definitions and YAML loader.
//
// Context
//   A Definition bundles everything the validator and the submission
//   orchestrator need to know about one form: its rule table, toggle-gated
//   field groups, cross-field rules, and the optional uniqueness-checked
//   field.  The built-in CRM forms are declared in Go (internal/crm).  Extra
//   forms may be declared in YAML and loaded through the same structural
//   checks.
//
// Workflow
//   •  Structs mirror the YAML schema: defFile → fieldFile / groupFile /
//      ruleFile / uniqueFile.
//   •  ParseDefinition decodes one document and validates its structure.
//   •  LoadDefinition reads one file.  Registry.LoadDir walks a directory for
//      “*.yaml” files, failing fast on the first broken definition.
//   •  Registry.Get offers read-only access by ID.
//
// Style
//   Comments follow the house guide: full sentences, two spaces after
//   periods, and Oxford commas.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Group is a set of fields validated only while Toggle is on.
type Group struct {
	Toggle string
	Fields []string
}

// Unique names the field whose value must not already exist remotely.
//
// Forbidden, when set, names another field of the same form whose value the
// unique field may never take.  That case is a local conflict and never
// reaches the network.
type Unique struct {
	Field     string
	Forbidden string
	Message   string // Conflict message.  DefaultConflictMessage when empty.
}

// DefaultConflictMessage is shown when a unique value is already in use.
const DefaultConflictMessage = "This email is already in use. Please use a different email."

// ConflictMessage returns the configured or default conflict text.
func (u Unique) ConflictMessage() string {
	if u.Message != "" {
		return u.Message
	}
	return DefaultConflictMessage
}

// Definition describes one form.
type Definition struct {
	ID     string
	Title  string
	Rules  *RuleTable
	Groups []Group
	Cross  []CrossRule
	Unique *Unique
}

// Validate checks that groups, cross rules, and the unique field refer to
// declared fields.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("form definition: missing id")
	}
	if d.Rules == nil || d.Rules.Len() == 0 {
		return fmt.Errorf("form %s: no fields", d.ID)
	}
	grouped := make(map[string]string)
	for _, g := range d.Groups {
		if g.Toggle == "" {
			return fmt.Errorf("form %s: group without toggle", d.ID)
		}
		for _, f := range g.Fields {
			if !d.Rules.Has(f) {
				return fmt.Errorf("form %s: group %q references unknown field %q", d.ID, g.Toggle, f)
			}
			if prev, dup := grouped[f]; dup {
				return fmt.Errorf("form %s: field %q in groups %q and %q", d.ID, f, prev, g.Toggle)
			}
			grouped[f] = g.Toggle
		}
	}
	for _, c := range d.Cross {
		for _, f := range c.Fields() {
			if !d.Rules.Has(f) {
				return fmt.Errorf("form %s: cross rule references unknown field %q", d.ID, f)
			}
		}
	}
	if d.Unique != nil {
		if !d.Rules.Has(d.Unique.Field) {
			return fmt.Errorf("form %s: unique field %q not declared", d.ID, d.Unique.Field)
		}
		if d.Unique.Forbidden != "" && !d.Rules.Has(d.Unique.Forbidden) {
			return fmt.Errorf("form %s: forbidden field %q not declared", d.ID, d.Unique.Forbidden)
		}
	}
	return nil
}

// GroupOf returns the toggle gating field, or "" when the field is always in
// scope.
func (d *Definition) GroupOf(field string) string {
	for _, g := range d.Groups {
		for _, f := range g.Fields {
			if f == field {
				return g.Toggle
			}
		}
	}
	return ""
}

// GroupFields returns the fields gated by toggle.
func (d *Definition) GroupFields(toggle string) []string {
	for _, g := range d.Groups {
		if g.Toggle == toggle {
			return append([]string(nil), g.Fields...)
		}
	}
	return nil
}

// InScope reports whether field is validated under toggles.
func (d *Definition) InScope(field string, toggles Toggles) bool {
	t := d.GroupOf(field)
	return t == "" || toggles[t]
}

// FieldsInScope returns the in-scope fields in declaration order.
func (d *Definition) FieldsInScope(toggles Toggles) []string {
	var out []string
	for _, name := range d.Rules.Names() {
		if d.InScope(name, toggles) {
			out = append(out, name)
		}
	}
	return out
}

// UniqueInScope returns the Unique declaration unless its field is switched
// off by a group toggle.
func (d *Definition) UniqueInScope(toggles Toggles) (Unique, bool) {
	if d.Unique == nil || !d.InScope(d.Unique.Field, toggles) {
		return Unique{}, false
	}
	return *d.Unique, true
}

// -----------------------------------------------------------------------------
// YAML schema
// -----------------------------------------------------------------------------

type defFile struct {
	ID     string      `yaml:"id"`
	Title  string      `yaml:"title"`
	Fields []fieldFile `yaml:"fields"`
	Groups []groupFile `yaml:"groups"`
	Rules  []ruleFile  `yaml:"rules"`
	Unique *uniqueFile `yaml:"unique"`
}

type fieldFile struct {
	Name      string `yaml:"name"`
	Label     string `yaml:"label"`
	Required  bool   `yaml:"required"`
	MinLength int    `yaml:"minlength"`
	MaxLength int    `yaml:"maxlength"`
	Pattern   string `yaml:"pattern"`
	ErrorMsg  string `yaml:"error"`
	Raw       bool   `yaml:"raw"`
}

type groupFile struct {
	Toggle string   `yaml:"toggle"`
	Fields []string `yaml:"fields"`
}

// ruleFile is loosely typed so new rule kinds need no schema churn.
type ruleFile struct {
	Type    string `yaml:"type"` // date_order, distinct, match
	Field   string `yaml:"field"`
	Other   string `yaml:"other"`
	Layout  string `yaml:"layout"`
	Message string `yaml:"message"`
}

type uniqueFile struct {
	Field     string `yaml:"field"`
	Forbidden string `yaml:"forbidden"`
	Message   string `yaml:"message"`
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// ParseDefinition decodes one YAML document.  source only labels errors.
func ParseDefinition(raw []byte, source string) (*Definition, error) {
	var df defFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", source, err)
	}

	rules := make([]FieldRule, 0, len(df.Fields))
	for _, f := range df.Fields {
		rules = append(rules, FieldRule{
			Name:      f.Name,
			Label:     f.Label,
			Required:  f.Required,
			MinLength: f.MinLength,
			MaxLength: f.MaxLength,
			Pattern:   f.Pattern,
			Message:   f.ErrorMsg,
			Raw:       f.Raw,
		})
	}
	table, err := NewRuleTable(rules...)
	if err != nil {
		return nil, fmt.Errorf("form definition %s: %w", source, err)
	}

	d := &Definition{ID: df.ID, Title: df.Title, Rules: table}
	for _, g := range df.Groups {
		d.Groups = append(d.Groups, Group{Toggle: g.Toggle, Fields: g.Fields})
	}
	for _, r := range df.Rules {
		cr, err := crossFromFile(r)
		if err != nil {
			return nil, fmt.Errorf("form definition %s: %w", source, err)
		}
		d.Cross = append(d.Cross, cr)
	}
	if df.Unique != nil {
		d.Unique = &Unique{
			Field:     df.Unique.Field,
			Forbidden: df.Unique.Forbidden,
			Message:   df.Unique.Message,
		}
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("form definition %s: %w", source, err)
	}
	return d, nil
}

// LoadDefinition reads and parses one YAML file.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return ParseDefinition(raw, path)
}

func crossFromFile(r ruleFile) (CrossRule, error) {
	if r.Field == "" || r.Other == "" {
		return nil, fmt.Errorf("rule %q needs 'field' and 'other'", r.Type)
	}
	switch r.Type {
	case "date_order":
		// field is the later date, other the earlier one.
		return DateOrder{Earlier: r.Other, Later: r.Field, Layout: r.Layout, Message: r.Message}, nil
	case "distinct":
		return Distinct{Field: r.Field, Other: r.Other, Message: r.Message}, nil
	case "match":
		return Match{Field: r.Field, Other: r.Other, Message: r.Message}, nil
	default:
		return nil, fmt.Errorf("unsupported rule type %q", r.Type)
	}
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry maps form ID → *Definition.  Safe for concurrent use.  Zero value
// is ready.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry returns a registry seeded with defs.  Later duplicates win.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register inserts or overrides d.  Caller must ensure d passed Validate.
func (r *Registry) Register(d *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = make(map[string]*Definition)
	}
	r.defs[d.ID] = d
}

// Get returns a definition by ID.  The boolean is false when unknown.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

// IDs returns registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for id := range r.defs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadDir registers every “*.yaml” under dir.  A missing dir is not an error.
func (r *Registry) LoadDir(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		def, err := LoadDefinition(path)
		if err != nil {
			return err // fail fast so issues surface loudly.
		}
		r.Register(def)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
