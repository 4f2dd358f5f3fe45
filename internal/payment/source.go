// Package payment holds the pure functions used to interpret bank export rows:
// source detection, transaction id extraction, sender normalization and
// match confidence.
package payment

import (
	"regexp"
	"strings"

	"github.com/cleared-dev/payrecon/internal/model"
)

// sourceRule maps a predicate over the lower-cased description and bank
// account label to a payment source.
type sourceRule struct {
	match  func(desc, account string) bool
	source model.PaymentSource
}

var wireAccountMarkers = []string{"bank transfer", "wire", "iban", "swift"}

// sourceRules are evaluated in order and the first match wins. A description
// mentioning both Chargebee and Stripe is Chargebee.
var sourceRules = []sourceRule{
	{
		match:  func(desc, _ string) bool { return strings.Contains(desc, "chargebee") },
		source: model.SourceChargebee,
	},
	{
		match:  func(desc, _ string) bool { return strings.Contains(desc, "stripe") },
		source: model.SourceStripe,
	},
	{
		match: func(desc, account string) bool {
			return strings.Contains(desc, "paypal") || strings.Contains(account, "paypal")
		},
		source: model.SourcePayPal,
	},
	{
		match: func(_, account string) bool {
			for _, m := range wireAccountMarkers {
				if strings.Contains(account, m) {
					return true
				}
			}
			return false
		},
		source: model.SourceWire,
	},
}

// DetectSource classifies a row by its description and bank account label.
func DetectSource(description, bankAccount string) model.PaymentSource {
	desc := strings.ToLower(description)
	account := strings.ToLower(bankAccount)
	for _, r := range sourceRules {
		if r.match(desc, account) {
			return r.source
		}
	}
	return model.SourceUnknown
}

var transactionIDPatterns = map[model.PaymentSource]*regexp.Regexp{
	model.SourceStripe:    regexp.MustCompile(`(?i)(?:stripe reference:|ch_)\s*([a-zA-Z0-9_]+)`),
	model.SourceChargebee: regexp.MustCompile(`(?i)ChargeBee customer: ([A-Za-z0-9]+)`),
	model.SourcePayPal:    regexp.MustCompile(`(?i)(?:paypal|transaction id:)\s*([A-Z0-9]+)`),
}

// ExtractTransactionID pulls the provider transaction id out of the
// description. Wire and unknown payments never carry one.
func ExtractTransactionID(p model.ProcessedPayment) (string, bool) {
	re, ok := transactionIDPatterns[p.PaymentSource]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(p.Description)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var chargebeeCustomerPattern = regexp.MustCompile(`(?i)ChargeBee customer: ([A-Za-z0-9]+) \(([^)]+)\)`)

// ExtractChargebeeCustomer returns the customer id and email embedded in a
// Chargebee payout description, e.g. "ChargeBee customer: AzZ1 (a@b.com)".
func ExtractChargebeeCustomer(description string) (customerID, email string, ok bool) {
	m := chargebeeCustomerPattern.FindStringSubmatch(description)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
