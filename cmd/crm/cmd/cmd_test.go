package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/crmapi"
	"github.com/yanizio/adept-crm/internal/form"
)

func testCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetIn(strings.NewReader(stdin))
	c.SetOut(&out)
	return c, &out
}

func TestValidate_EntityFromStdin(t *testing.T) {
	validateEntity, validateForm, validateFile, validateDir = "contact", "", "-", ""
	t.Cleanup(func() { validateEntity = "" })

	c, out := testCmd(`{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com",
		"login_enabled":true,"login_email":"ada@example.com","password":"short"}`)
	err := runValidate(c, nil)
	if !errors.Is(err, errReported) {
		t.Fatalf("err = %v, want errReported", err)
	}
	got := out.String()
	if !strings.Contains(got, "login_email: Login email must be different from the contact email") {
		t.Fatalf("output lacks distinct error:\n%s", got)
	}
	if !strings.Contains(got, "password: ") {
		t.Fatalf("output lacks password error:\n%s", got)
	}
}

func TestValidate_YAMLFormOK(t *testing.T) {
	validateEntity, validateForm, validateFile = "", "crm/event-signup", "-"
	validateDir = filepath.Join("..", "..", "..", "conf", "forms")
	t.Cleanup(func() { validateForm, validateDir = "", "" })

	c, out := testCmd(`{"full_name":"Grace Hopper","email":"grace@example.com",
		"arrival":"2026-03-01","departure":"2026-03-03"}`)
	if err := runValidate(c, nil); err != nil {
		t.Fatalf("runValidate: %v (%s)", err, out)
	}
	if strings.TrimSpace(out.String()) != "crm/event-signup: ok" {
		t.Fatalf("output = %q", out)
	}
}

func TestLint(t *testing.T) {
	dir := t.TempDir()
	good := "id: t/good\nfields:\n  - name: a\n    required: true\n"
	bad := "id: t/bad\nfields:\n  - name: a\nrules:\n  - type: match\n    field: a\n    other: ghost\n"
	if err := os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}

	c, out := testCmd("")
	if err := runLint(c, []string{dir}); err != nil {
		t.Fatalf("good dir: %v", err)
	}
	if !strings.Contains(out.String(), "ok   t/good") {
		t.Fatalf("output = %q", out)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runLint(c, []string{dir}); !errors.Is(err, errReported) {
		t.Fatalf("bad dir: err = %v", err)
	}
}

func TestSplitPayload(t *testing.T) {
	vals, tg := splitPayload(map[string]any{"a": "x", "on": true, "n": 3.0, "z": nil})
	if diff := cmp.Diff(form.Values{"a": "x"}, vals); diff != "" {
		t.Fatalf("values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(form.Toggles{"on": true}, tg); diff != "" {
		t.Fatalf("toggles (-want +got):\n%s", diff)
	}
}

func TestPrintRecord_Typed(t *testing.T) {
	rec := crmapi.Record{ID: "registration-1", Entity: "registration", Data: map[string]any{
		"full_name": "Ada Lovelace",
		"email":     "ada@example.com",
		"company":   nil,
		"password":  "$2a$10$hash",
	}}
	var out bytes.Buffer
	if err := printRecord(&out, crm.RegistrationEntity, rec); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, `"FullName": "Ada Lovelace"`) || !strings.Contains(got, `"id": "registration-1"`) {
		t.Fatalf("output = %s", got)
	}
	if strings.Contains(got, "hash") || strings.Contains(got, "Password") {
		t.Fatalf("secret printed: %s", got)
	}
}
