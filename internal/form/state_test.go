// internal/form/state_test.go
//
// Unit-tests for the immutable State builders.

package form

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestState_BuildersDoNotMutateReceiver(t *testing.T) {
	s0 := NewState(Values{"name": "Ada"}, nil)
	s1 := s0.WithValue("name", "Grace").
		WithToggle("login_enabled", true).
		Touch("name").
		WithFieldError("name", FieldError{Message: "bad", Source: SourceServer}).
		WithFormError("banner")

	if s0.Value("name") != "Ada" || s0.Toggle("login_enabled") || s0.Touched("name") {
		t.Fatalf("receiver mutated: %+v", s0)
	}
	if _, ok := s0.Error("name"); ok || s0.FormError() != "" {
		t.Fatalf("receiver errors mutated")
	}
	if s1.Value("name") != "Grace" || !s1.Toggle("login_enabled") || s1.FormError() != "banner" {
		t.Fatalf("builder result wrong: %+v", s1)
	}
}

func TestState_VisibleGatesOnTouched(t *testing.T) {
	s := State{}.WithErrors(Errors{
		"name":  {Message: "This field is required", Source: SourceRule},
		"email": {Message: "bad", Source: SourceRule},
	}).Touch("email")

	want := map[string]string{"email": "bad"}
	if diff := cmp.Diff(want, s.Visible()); diff != "" {
		t.Fatalf("visible mismatch (-want +got):\n%s", diff)
	}
}

func TestState_ClearErrorsKeepsOthers(t *testing.T) {
	s := State{}.WithErrors(Errors{
		"password":    {Message: "short", Source: SourceRule},
		"login_email": {Message: "taken", Source: SourceAsync},
		"name":        {Message: "required", Source: SourceRule},
	})
	s = s.ClearErrors("password", "login_email")
	if diff := cmp.Diff(map[string]string{"name": "required"}, s.Errors().Messages()); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if s.Valid() {
		t.Fatal("state with errors reported valid")
	}
}

func TestState_EmptyMessageClears(t *testing.T) {
	s := State{}.WithFieldError("a", FieldError{Message: "x"})
	s = s.WithFieldError("a", FieldError{})
	if !s.Valid() {
		t.Fatalf("expected valid state, got %v", s.Errors())
	}
}
