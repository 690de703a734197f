// internal/crm/customer.go
//
// Customer form.  Customers are companies; the billing email is unique.

package crm

import "github.com/yanizio/adept-crm/internal/form"

// CustomerEntity is the customer screen.
var CustomerEntity = register(&Entity{
	Name: "customer",
	Def: &form.Definition{
		ID:    "crm/customer",
		Title: "Customer",
		Rules: form.MustRuleTable(
			form.FieldRule{Name: "company_name", Label: "Company name", Required: true, MinLength: 2, MaxLength: 120},
			form.FieldRule{Name: "email", Label: "Email", Required: true, MaxLength: 254,
				Pattern: emailPattern, Message: msgEmail},
			form.FieldRule{Name: "phone", Label: "Phone", Pattern: phonePattern, Message: msgPhone},
			form.FieldRule{Name: "website", Label: "Website", MaxLength: 200,
				Pattern: `https?://\S+`, Message: "Please enter a full URL starting with http:// or https://"},
			form.FieldRule{Name: "tax_id", Label: "Tax ID",
				Pattern: `[A-Za-z0-9\-]{5,20}`, Message: "Tax ID must be 5 to 20 letters, digits, or dashes"},
			form.FieldRule{Name: "address", Label: "Address", MaxLength: 250},
		),
		Unique: &form.Unique{Field: "email"},
	},
	Normalize: map[string]func(string) string{"email": lower, "tax_id": upper},
	Typed:     func(v form.Values, _ form.Toggles) any { return CustomerFromValues(v) },
})

// Customer is the typed view of a customer form.
type Customer struct {
	CompanyName string
	Email       string
	Phone       string
	Website     string
	TaxID       string
	Address     string
}

func (c Customer) WithCompanyName(v string) Customer { c.CompanyName = v; return c }
func (c Customer) WithEmail(v string) Customer       { c.Email = v; return c }
func (c Customer) WithPhone(v string) Customer       { c.Phone = v; return c }
func (c Customer) WithWebsite(v string) Customer     { c.Website = v; return c }
func (c Customer) WithTaxID(v string) Customer       { c.TaxID = v; return c }
func (c Customer) WithAddress(v string) Customer     { c.Address = v; return c }

// Values returns the form inputs for c.
func (c Customer) Values() form.Values {
	return form.Values{
		"company_name": c.CompanyName,
		"email":        c.Email,
		"phone":        c.Phone,
		"website":      c.Website,
		"tax_id":       c.TaxID,
		"address":      c.Address,
	}
}

// CustomerFromValues is the inverse of Customer.Values.
func CustomerFromValues(v form.Values) Customer {
	return Customer{
		CompanyName: v["company_name"],
		Email:       v["email"],
		Phone:       v["phone"],
		Website:     v["website"],
		TaxID:       v["tax_id"],
		Address:     v["address"],
	}
}
