// internal/crm/payment.go
//
// Payment profile form.  IBANs are accepted with spaces and sent compacted
// and upper-cased.  Auto-pay is a plain toggle with no dependent fields.

package crm

import "github.com/yanizio/adept-crm/internal/form"

// ToggleAutoPay marks a payment profile for automatic collection.
const ToggleAutoPay = "auto_pay"

// PaymentEntity is the payment profile screen.
var PaymentEntity = register(&Entity{
	Name: "payment_profile",
	Def: &form.Definition{
		ID:    "crm/payment_profile",
		Title: "Payment profile",
		Rules: form.MustRuleTable(
			form.FieldRule{Name: "customer_id", Label: "Customer", Required: true},
			form.FieldRule{Name: "holder_name", Label: "Account holder", Required: true, MinLength: 2, MaxLength: 120},
			form.FieldRule{Name: "billing_email", Label: "Billing email", Required: true, MaxLength: 254,
				Pattern: emailPattern, Message: msgEmail},
			form.FieldRule{Name: "iban", Label: "IBAN", Required: true,
				Pattern: `[A-Za-z]{2}[0-9]{2}[A-Za-z0-9 ]{11,40}`, Message: "Please enter a valid IBAN"},
			form.FieldRule{Name: "bic", Label: "BIC",
				Pattern: `[A-Za-z]{6}[A-Za-z0-9]{2}([A-Za-z0-9]{3})?`, Message: "Please enter a valid BIC"},
			form.FieldRule{Name: "currency", Label: "Currency", Required: true,
				Pattern: `[A-Za-z]{3}`, Message: "Please enter a three-letter currency code"},
		),
	},
	Toggles: []string{ToggleAutoPay},
	Normalize: map[string]func(string) string{
		"iban":          compact,
		"bic":           upper,
		"currency":      upper,
		"billing_email": lower,
	},
	Typed: func(v form.Values, t form.Toggles) any { return PaymentProfileFromValues(v, t) },
})

// PaymentProfile is the typed view of a payment profile form.
type PaymentProfile struct {
	CustomerID   string
	HolderName   string
	BillingEmail string
	IBAN         string
	BIC          string
	Currency     string
	AutoPay      bool
}

func (p PaymentProfile) WithCustomerID(v string) PaymentProfile   { p.CustomerID = v; return p }
func (p PaymentProfile) WithHolderName(v string) PaymentProfile   { p.HolderName = v; return p }
func (p PaymentProfile) WithBillingEmail(v string) PaymentProfile { p.BillingEmail = v; return p }
func (p PaymentProfile) WithIBAN(v string) PaymentProfile         { p.IBAN = v; return p }
func (p PaymentProfile) WithBIC(v string) PaymentProfile          { p.BIC = v; return p }
func (p PaymentProfile) WithCurrency(v string) PaymentProfile     { p.Currency = v; return p }
func (p PaymentProfile) WithAutoPay(on bool) PaymentProfile       { p.AutoPay = on; return p }

// Values returns the form inputs and toggles for p.
func (p PaymentProfile) Values() (form.Values, form.Toggles) {
	vals := form.Values{
		"customer_id":   p.CustomerID,
		"holder_name":   p.HolderName,
		"billing_email": p.BillingEmail,
		"iban":          p.IBAN,
		"bic":           p.BIC,
		"currency":      p.Currency,
	}
	return vals, form.Toggles{ToggleAutoPay: p.AutoPay}
}

// PaymentProfileFromValues is the inverse of PaymentProfile.Values.
func PaymentProfileFromValues(v form.Values, t form.Toggles) PaymentProfile {
	return PaymentProfile{
		CustomerID:   v["customer_id"],
		HolderName:   v["holder_name"],
		BillingEmail: v["billing_email"],
		IBAN:         v["iban"],
		BIC:          v["bic"],
		Currency:     v["currency"],
		AutoPay:      t[ToggleAutoPay],
	}
}
