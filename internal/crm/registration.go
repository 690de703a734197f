// internal/crm/registration.go
//
// Account registration and login forms.
//
// Registration creates a portal user; the email is unique and the password
// must be typed twice.  The confirmation never leaves the client.  Login
// has no backend entity of its own and is validated locally only.

package crm

import "github.com/yanizio/adept-crm/internal/form"

// RegistrationEntity is the sign-up screen.
var RegistrationEntity = register(&Entity{
	Name: "registration",
	Def: &form.Definition{
		ID:    "crm/registration",
		Title: "Create account",
		Rules: form.MustRuleTable(
			form.FieldRule{Name: "full_name", Label: "Full name", Required: true, MinLength: 2, MaxLength: 100},
			form.FieldRule{Name: "email", Label: "Email", Required: true, MaxLength: 254,
				Pattern: emailPattern, Message: msgEmail},
			form.FieldRule{Name: "company", Label: "Company", MaxLength: 120},
			form.FieldRule{Name: "password", Label: "Password", Required: true, MinLength: 8, MaxLength: 72,
				Pattern: passwordPattern, Message: "Password must contain letters and numbers", Raw: true},
			form.FieldRule{Name: "confirm_password", Label: "Confirm password", Required: true, Raw: true},
		),
		Cross: []form.CrossRule{
			form.Match{Field: "confirm_password", Other: "password", Message: "Passwords do not match"},
		},
		Unique: &form.Unique{Field: "email"},
	},
	Omit:      map[string]bool{"confirm_password": true},
	Secret:    map[string]bool{"password": true},
	Normalize: map[string]func(string) string{"email": lower},
	Typed:     func(v form.Values, _ form.Toggles) any { return RegistrationFromValues(v) },
})

// LoginForm validates the sign-in screen.
var LoginForm = &form.Definition{
	ID:    "crm/login",
	Title: "Sign in",
	Rules: form.MustRuleTable(
		form.FieldRule{Name: "email", Label: "Email", Required: true, Pattern: emailPattern, Message: msgEmail},
		form.FieldRule{Name: "password", Label: "Password", Required: true, Raw: true},
	),
}

// Registration is the typed view of a registration form.
type Registration struct {
	FullName string
	Email    string
	Company  string
	Password string `json:"-"`
	Confirm  string `json:"-"`
}

func (r Registration) WithFullName(v string) Registration { r.FullName = v; return r }
func (r Registration) WithEmail(v string) Registration    { r.Email = v; return r }
func (r Registration) WithCompany(v string) Registration  { r.Company = v; return r }

// WithPassword sets the password and its confirmation.
func (r Registration) WithPassword(pw, confirm string) Registration {
	r.Password, r.Confirm = pw, confirm
	return r
}

// Values returns the form inputs for r.
func (r Registration) Values() form.Values {
	return form.Values{
		"full_name":        r.FullName,
		"email":            r.Email,
		"company":          r.Company,
		"password":         r.Password,
		"confirm_password": r.Confirm,
	}
}

// RegistrationFromValues is the inverse of Registration.Values.
func RegistrationFromValues(v form.Values) Registration {
	return Registration{
		FullName: v["full_name"],
		Email:    v["email"],
		Company:  v["company"],
		Password: v["password"],
		Confirm:  v["confirm_password"],
	}
}
