// internal/crm/entity_test.go
//
// Built-in entity forms: rule tables, cross rules, and payload mapping.

package crm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yanizio/adept-crm/internal/form"
)

func validContact() Contact {
	return Contact{}.
		WithFirstName("Ada").
		WithLastName("Lovelace").
		WithEmail("ada@example.com").
		WithCustomerID("cus-1")
}

func TestEntities_Registered(t *testing.T) {
	want := []string{"compliance", "contact", "customer", "lead", "payment_profile", "registration"}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Fatalf("Names mismatch (-want +got):\n%s", diff)
	}
	reg := Definitions()
	for _, id := range []string{"crm/contact", "crm/login", "crm/lead"} {
		if _, ok := reg.Get(id); !ok {
			t.Fatalf("definition %s missing", id)
		}
	}
}

func TestLead_RequiredAndEmail(t *testing.T) {
	l := Lead{}.WithName("").WithEmail("not-an-email").WithStatus("new")
	errs := form.ValidateForm(l.Values(), LeadEntity.Def, nil)
	got := errs.Messages()
	want := map[string]string{
		"name":  "This field is required",
		"email": "Please enter a valid email address",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestLead_StatusIsFullMatch(t *testing.T) {
	l := Lead{}.WithName("Ada").WithEmail("ada@example.com").WithStatus("newish")
	errs := form.ValidateForm(l.Values(), LeadEntity.Def, nil)
	if _, bad := errs["status"]; !bad {
		t.Fatal("partial status match accepted")
	}
}

func TestContact_LoginToggle(t *testing.T) {
	vals, tg := validContact().Values()
	if errs := form.ValidateForm(vals, ContactEntity.Def, tg); len(errs) != 0 {
		t.Fatalf("toggle off: unexpected errors %v", errs.Messages())
	}

	vals, tg = validContact().WithLogin("", "").Values()
	errs := form.ValidateForm(vals, ContactEntity.Def, tg)
	if len(errs) != 2 || errs["login_email"].Message == "" || errs["password"].Message == "" {
		t.Fatalf("toggle on: errors = %v", errs.Messages())
	}
}

func TestContact_LoginEmailMustDiffer(t *testing.T) {
	vals, tg := validContact().WithLogin("ADA@example.com", "secret123").Values()
	errs := form.ValidateForm(vals, ContactEntity.Def, tg)
	fe, ok := errs["login_email"]
	if !ok || fe.Source != form.SourceCrossField {
		t.Fatalf("login_email error = %+v, %v", fe, ok)
	}
}

func TestContact_PayloadNullsDisabledGroup(t *testing.T) {
	c := validContact().WithPhone("  +44 20 7946 0000 ").WithLogin("portal@example.com", " pw with space1 ").WithoutLogin()
	vals, tg := c.Values()
	got := ContactEntity.Payload(vals, tg)
	want := map[string]any{
		"first_name":    "Ada",
		"last_name":     "Lovelace",
		"email":         "ada@example.com",
		"phone":         "+44 20 7946 0000",
		"job_title":     nil,
		"customer_id":   "cus-1",
		"login_email":   nil,
		"password":      nil,
		"login_enabled": false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	vals, tg = c.WithLogin("Portal@Example.com", " pw with space1 ").Values()
	got = ContactEntity.Payload(vals, tg)
	if got["password"] != " pw with space1 " || got["login_email"] != "portal@example.com" {
		t.Fatalf("enabled payload = %v", got)
	}
}

func TestCompliance_DateOrder(t *testing.T) {
	c := Compliance{}.WithCustomerID("cus-1").WithFormType("kyc").WithReference("ref-001").
		WithPeriod("2024-06-01", "2024-05-01")
	errs := form.ValidateForm(c.Values(), ComplianceEntity.Def, nil)
	fe, ok := errs["end_date"]
	if !ok || fe.Message != "End date cannot be before start date" {
		t.Fatalf("end_date error = %+v, %v", fe, ok)
	}
	if _, ok := errs["start_date"]; ok {
		t.Fatal("start_date flagged")
	}

	c = c.WithPeriod("2024-05-01", "2024-05-01")
	if errs := form.ValidateForm(c.Values(), ComplianceEntity.Def, nil); len(errs) != 0 {
		t.Fatalf("same-day window rejected: %v", errs.Messages())
	}
}

func TestPayment_Normalization(t *testing.T) {
	p := PaymentProfile{}.WithCustomerID("cus-1").WithHolderName("Ada Lovelace").
		WithBillingEmail("Billing@Example.com").WithIBAN("gb82 west 1234 5698 7654 32").
		WithBIC("westgb2l").WithCurrency("gbp").WithAutoPay(true)
	vals, tg := p.Values()
	if errs := form.ValidateForm(vals, PaymentEntity.Def, tg); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs.Messages())
	}
	got := PaymentEntity.Payload(vals, tg)
	want := map[string]any{
		"customer_id":   "cus-1",
		"holder_name":   "Ada Lovelace",
		"billing_email": "billing@example.com",
		"iban":          "GB82WEST12345698765432",
		"bic":           "WESTGB2L",
		"currency":      "GBP",
		"auto_pay":      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistration_ConfirmNeverSent(t *testing.T) {
	r := Registration{}.WithFullName("Ada").WithEmail("ada@example.com").WithPassword("abc12345", "abc12346")
	errs := form.ValidateForm(r.Values(), RegistrationEntity.Def, nil)
	if errs["confirm_password"].Message != "Passwords do not match" {
		t.Fatalf("errors = %v", errs.Messages())
	}

	r = r.WithPassword("abc12345", "abc12345")
	payload := RegistrationEntity.Payload(r.Values(), nil)
	if _, ok := payload["confirm_password"]; ok {
		t.Fatal("confirmation included in payload")
	}
	if payload["password"] != "abc12345" {
		t.Fatalf("password = %v", payload["password"])
	}
}

func TestValuesFromPayload_RoundTrip(t *testing.T) {
	c := validContact().WithLogin("portal@example.com", "secret123")
	vals, tg := c.Values()
	back, btg := ContactEntity.ValuesFromPayload(ContactEntity.Payload(vals, tg))
	got := ContactFromValues(back, btg)

	// Secrets are write-only; edit pre-fill leaves them blank.
	want := c
	want.Password = ""
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSecretFields(t *testing.T) {
	c := validContact().WithLogin("portal@example.com", "  secret123 ")
	vals, tg := c.Values()
	payload := ContactEntity.Payload(vals, tg)
	if payload["password"] != "  secret123 " {
		t.Fatalf("password trimmed: %q", payload["password"])
	}

	red := ContactEntity.Redact(payload)
	if _, ok := red["password"]; ok {
		t.Fatal("redacted payload still carries password")
	}
	if red["login_email"] != "portal@example.com" {
		t.Fatalf("login_email = %v", red["login_email"])
	}

	rec, ok := ContactEntity.Record(vals, tg).(Contact)
	if !ok {
		t.Fatalf("record type %T", ContactEntity.Record(vals, tg))
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "secret123") {
		t.Fatalf("typed record leaks password: %s", b)
	}
	if _, ok := LeadEntity.Record(form.Values{"email": "a@b.co"}, nil).(Lead); !ok {
		t.Fatal("lead record is not typed")
	}
}

func TestValidatePayload_IgnoresOmittedFields(t *testing.T) {
	payload := map[string]any{
		"full_name": "Ada",
		"email":     "ada@example.com",
		"company":   nil,
		"password":  "abc12345",
	}
	vals, _, errs := RegistrationEntity.ValidatePayload(payload)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs.Messages())
	}
	if f, v := RegistrationEntity.UniqueKey(vals, nil); f != "email" || v != "ada@example.com" {
		t.Fatalf("unique = %q %q", f, v)
	}

	_, tg := validContact().Values()
	if f, _ := ContactEntity.UniqueKey(form.Values{}, tg); f != "" {
		t.Fatalf("unique field %q in scope with login disabled", f)
	}
}
