// internal/crm/lead.go
//
// Lead form.  The email must be unique across leads.

package crm

import "github.com/yanizio/adept-crm/internal/form"

// LeadEntity is the lead screen.
var LeadEntity = register(&Entity{
	Name: "lead",
	Def: &form.Definition{
		ID:    "crm/lead",
		Title: "Lead",
		Rules: form.MustRuleTable(
			form.FieldRule{Name: "name", Label: "Name", Required: true, MinLength: 2, MaxLength: 100},
			form.FieldRule{Name: "email", Label: "Email", Required: true, MaxLength: 254,
				Pattern: emailPattern, Message: msgEmail},
			form.FieldRule{Name: "phone", Label: "Phone", Pattern: phonePattern, Message: msgPhone},
			form.FieldRule{Name: "company", Label: "Company", MaxLength: 120},
			form.FieldRule{Name: "status", Label: "Status", Required: true,
				Pattern: "new|contacted|qualified|won|lost", Message: "Please choose a valid status"},
			form.FieldRule{Name: "source", Label: "Source", MaxLength: 60},
			form.FieldRule{Name: "notes", Label: "Notes", MaxLength: 1000},
		),
		Unique: &form.Unique{Field: "email"},
	},
	Normalize: map[string]func(string) string{"email": lower},
	Typed:     func(v form.Values, _ form.Toggles) any { return LeadFromValues(v) },
})

// Lead is the typed view of a lead form.
type Lead struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Status  string
	Source  string
	Notes   string
}

func (l Lead) WithName(v string) Lead    { l.Name = v; return l }
func (l Lead) WithEmail(v string) Lead   { l.Email = v; return l }
func (l Lead) WithPhone(v string) Lead   { l.Phone = v; return l }
func (l Lead) WithCompany(v string) Lead { l.Company = v; return l }
func (l Lead) WithStatus(v string) Lead  { l.Status = v; return l }
func (l Lead) WithSource(v string) Lead  { l.Source = v; return l }
func (l Lead) WithNotes(v string) Lead   { l.Notes = v; return l }

// Values returns the form inputs for l.
func (l Lead) Values() form.Values {
	return form.Values{
		"name":    l.Name,
		"email":   l.Email,
		"phone":   l.Phone,
		"company": l.Company,
		"status":  l.Status,
		"source":  l.Source,
		"notes":   l.Notes,
	}
}

// LeadFromValues is the inverse of Lead.Values.
func LeadFromValues(v form.Values) Lead {
	return Lead{
		Name:    v["name"],
		Email:   v["email"],
		Phone:   v["phone"],
		Company: v["company"],
		Status:  v["status"],
		Source:  v["source"],
		Notes:   v["notes"],
	}
}
