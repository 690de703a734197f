// internal/form/definition_test.go
//
// Unit-tests for YAML definition loading and the registry.

package form

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefinition_Contact(t *testing.T) {
	d, err := LoadDefinition(filepath.Join("testdata", "contact.yaml"))
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	if d.ID != "crm/contact-extra" || d.Rules.Len() != 4 {
		t.Fatalf("unexpected definition: id=%q fields=%d", d.ID, d.Rules.Len())
	}
	if g := d.GroupOf("password"); g != "login_enabled" {
		t.Fatalf("GroupOf(password) = %q", g)
	}
	if _, ok := d.UniqueInScope(Toggles{}); ok {
		t.Fatal("unique field should be out of scope with toggle off")
	}
	u, ok := d.UniqueInScope(Toggles{"login_enabled": true})
	if !ok || u.Forbidden != "email" || u.ConflictMessage() != DefaultConflictMessage {
		t.Fatalf("unique = %+v, %v", u, ok)
	}

	errs := ValidateForm(Values{"name": "Ada", "email": "a@b.io", "login_email": "A@b.io", "password": "longenough"},
		d, Toggles{"login_enabled": true})
	if errs["login_email"].Source != SourceCrossField {
		t.Fatalf("expected distinct violation, got %v", errs.Messages())
	}
}

func TestParseDefinition_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing id": `fields: [{name: a}]`,
		"no fields":  `id: x`,
		"pattern without error": `
id: x
fields: [{name: a, pattern: '\d+'}]`,
		"unknown group field": `
id: x
fields: [{name: a}]
groups: [{toggle: t, fields: [b]}]`,
		"unknown rule type": `
id: x
fields: [{name: a}, {name: b}]
rules: [{type: before, field: a, other: b}]`,
		"unique not declared": `
id: x
fields: [{name: a}]
unique: {field: b}`,
	}
	for name, doc := range cases {
		if _, err := ParseDefinition([]byte(doc), name); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseDefinition_DateOrderDirection(t *testing.T) {
	doc := `
id: crm/window
fields: [{name: start_date}, {name: end_date}]
rules:
  - type: date_order
    field: end_date
    other: start_date
    message: End before start
`
	d, err := ParseDefinition([]byte(doc), "inline")
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}
	errs := ValidateForm(Values{"start_date": "2025-02-01", "end_date": "2025-01-01"}, d, nil)
	if errs["end_date"].Message != "End before start" {
		t.Fatalf("errors = %v", errs.Messages())
	}
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	raw, err := os.ReadFile(filepath.Join("testdata", "contact.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "contact.yaml"), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if _, ok := reg.Get("crm/contact-extra"); !ok {
		t.Fatalf("definition not registered, ids=%v", reg.IDs())
	}
	if err := reg.LoadDir(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("missing dir should be ignored: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("id: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reg.LoadDir(dir); err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("expected parse error naming bad.yaml, got %v", err)
	}
}
