// internal/crm/compliance.go
//
// Compliance record form.  A customer’s KYC, AML, or GDPR filing covers a
// validity window; the end date may not precede the start date.  Reference
// numbers are unique.

package crm

import "github.com/yanizio/adept-crm/internal/form"

// ComplianceEntity is the compliance screen.
var ComplianceEntity = register(&Entity{
	Name: "compliance",
	Def: &form.Definition{
		ID:    "crm/compliance",
		Title: "Compliance record",
		Rules: form.MustRuleTable(
			form.FieldRule{Name: "customer_id", Label: "Customer", Required: true},
			form.FieldRule{Name: "form_type", Label: "Form type", Required: true,
				Pattern: "kyc|aml|gdpr|soc2", Message: "Please choose a valid form type"},
			form.FieldRule{Name: "reference", Label: "Reference", Required: true, MinLength: 3, MaxLength: 40},
			form.FieldRule{Name: "start_date", Label: "Start date", Required: true,
				Pattern: datePattern, Message: msgDate},
			form.FieldRule{Name: "end_date", Label: "End date", Required: true,
				Pattern: datePattern, Message: msgDate},
			form.FieldRule{Name: "notes", Label: "Notes", MaxLength: 1000},
		),
		Cross: []form.CrossRule{
			form.DateOrder{Earlier: "start_date", Later: "end_date"},
		},
		Unique: &form.Unique{Field: "reference",
			Message: "This reference is already registered. Please use a different reference."},
	},
	Normalize: map[string]func(string) string{"reference": upper},
	Typed:     func(v form.Values, _ form.Toggles) any { return ComplianceFromValues(v) },
})

// Compliance is the typed view of a compliance form.
type Compliance struct {
	CustomerID string
	FormType   string
	Reference  string
	StartDate  string
	EndDate    string
	Notes      string
}

func (c Compliance) WithCustomerID(v string) Compliance { c.CustomerID = v; return c }
func (c Compliance) WithFormType(v string) Compliance   { c.FormType = v; return c }
func (c Compliance) WithReference(v string) Compliance  { c.Reference = v; return c }
func (c Compliance) WithNotes(v string) Compliance      { c.Notes = v; return c }

// WithPeriod sets both ends of the validity window.
func (c Compliance) WithPeriod(start, end string) Compliance {
	c.StartDate, c.EndDate = start, end
	return c
}

// Values returns the form inputs for c.
func (c Compliance) Values() form.Values {
	return form.Values{
		"customer_id": c.CustomerID,
		"form_type":   c.FormType,
		"reference":   c.Reference,
		"start_date":  c.StartDate,
		"end_date":    c.EndDate,
		"notes":       c.Notes,
	}
}

// ComplianceFromValues is the inverse of Compliance.Values.
func ComplianceFromValues(v form.Values) Compliance {
	return Compliance{
		CustomerID: v["customer_id"],
		FormType:   v["form_type"],
		Reference:  v["reference"],
		StartDate:  v["start_date"],
		EndDate:    v["end_date"],
		Notes:      v["notes"],
	}
}
