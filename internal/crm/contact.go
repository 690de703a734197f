// internal/crm/contact.go
//
// CRM contact – person attached to a customer, optionally with portal login.
//
// Context
//   Switching on “login_enabled” brings login_email and password into scope.
//   The login email must differ from the contact email and must not already
//   be used by another contact.  With the toggle off both fields are sent as
//   null and the uniqueness checker is never consulted.
//
//------------------------------------------------------------------------------

package crm

import "github.com/yanizio/adept-crm/internal/form"

// ToggleLogin enables the portal login group on a contact.
const ToggleLogin = "login_enabled"

const passwordPattern = `.*[A-Za-z].*[0-9].*|.*[0-9].*[A-Za-z].*`

// ContactEntity is the contact screen.
var ContactEntity = register(&Entity{
	Name: "contact",
	Def: &form.Definition{
		ID:    "crm/contact",
		Title: "Contact",
		Rules: form.MustRuleTable(
			form.FieldRule{Name: "first_name", Label: "First name", Required: true, MaxLength: 60},
			form.FieldRule{Name: "last_name", Label: "Last name", Required: true, MaxLength: 60},
			form.FieldRule{Name: "email", Label: "Email", Required: true, MaxLength: 254,
				Pattern: emailPattern, Message: msgEmail},
			form.FieldRule{Name: "phone", Label: "Phone", Pattern: phonePattern, Message: msgPhone},
			form.FieldRule{Name: "job_title", Label: "Job title", MaxLength: 80},
			form.FieldRule{Name: "customer_id", Label: "Customer", Required: true},
			form.FieldRule{Name: "login_email", Label: "Login email", Required: true, MaxLength: 254,
				Pattern: emailPattern, Message: msgEmail},
			form.FieldRule{Name: "password", Label: "Password", Required: true, MinLength: 8, MaxLength: 72,
				Pattern: passwordPattern, Message: "Password must contain letters and numbers", Raw: true},
		),
		Groups: []form.Group{{Toggle: ToggleLogin, Fields: []string{"login_email", "password"}}},
		Cross: []form.CrossRule{
			form.Distinct{Field: "login_email", Other: "email",
				Message: "Login email must be different from the contact email"},
		},
		Unique: &form.Unique{Field: "login_email", Forbidden: "email"},
	},
	Toggles:   []string{ToggleLogin},
	Secret:    map[string]bool{"password": true},
	Typed:     func(v form.Values, t form.Toggles) any { return ContactFromValues(v, t) },
	Normalize: map[string]func(string) string{"email": lower, "login_email": lower},
})

// Contact is the typed view of a contact form.
type Contact struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	JobTitle     string
	CustomerID   string
	LoginEnabled bool
	LoginEmail   string
	Password     string `json:"-"`
}

func (c Contact) WithFirstName(v string) Contact  { c.FirstName = v; return c }
func (c Contact) WithLastName(v string) Contact   { c.LastName = v; return c }
func (c Contact) WithEmail(v string) Contact      { c.Email = v; return c }
func (c Contact) WithPhone(v string) Contact      { c.Phone = v; return c }
func (c Contact) WithJobTitle(v string) Contact   { c.JobTitle = v; return c }
func (c Contact) WithCustomerID(v string) Contact { c.CustomerID = v; return c }

// WithLogin switches the login group on with the given credentials.
func (c Contact) WithLogin(email, password string) Contact {
	c.LoginEnabled, c.LoginEmail, c.Password = true, email, password
	return c
}

// WithoutLogin switches the login group off.  Credentials are kept so that
// switching back on restores them.
func (c Contact) WithoutLogin() Contact { c.LoginEnabled = false; return c }

// Values returns the form inputs and toggles for c.
func (c Contact) Values() (form.Values, form.Toggles) {
	vals := form.Values{
		"first_name":  c.FirstName,
		"last_name":   c.LastName,
		"email":       c.Email,
		"phone":       c.Phone,
		"job_title":   c.JobTitle,
		"customer_id": c.CustomerID,
		"login_email": c.LoginEmail,
		"password":    c.Password,
	}
	return vals, form.Toggles{ToggleLogin: c.LoginEnabled}
}

// ContactFromValues is the inverse of Contact.Values.
func ContactFromValues(v form.Values, t form.Toggles) Contact {
	return Contact{
		FirstName:    v["first_name"],
		LastName:     v["last_name"],
		Email:        v["email"],
		Phone:        v["phone"],
		JobTitle:     v["job_title"],
		CustomerID:   v["customer_id"],
		LoginEnabled: t[ToggleLogin],
		LoginEmail:   v["login_email"],
		Password:     v["password"],
	}
}
