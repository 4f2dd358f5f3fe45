package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentSource identifies the provider a bank row came through.
type PaymentSource string

const (
	SourceChargebee PaymentSource = "chargebee"
	SourceStripe    PaymentSource = "stripe"
	SourcePayPal    PaymentSource = "paypal"
	SourceWire      PaymentSource = "wire"
	SourceUnknown   PaymentSource = "unknown"
)

// PaymentSources lists every known source.
var PaymentSources = []PaymentSource{SourceChargebee, SourceStripe, SourcePayPal, SourceWire, SourceUnknown}

// ParsePaymentSource matches s against the known sources, ignoring case.
func ParsePaymentSource(s string) (PaymentSource, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, src := range PaymentSources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// Direction is the bank's direction code for a row.
type Direction string

const (
	DirectionDebit  Direction = "DBIT"
	DirectionCredit Direction = "CRDT"
)

// ProcessedPayment is one bank export row after parsing. It is built once and
// never modified afterwards.
type ProcessedPayment struct {
	Direction   Direction
	Sender      string
	RawSender   string // verbatim sender, kept for exact mapping lookups
	Description string
	BankAccount string
	Date        string // passed through from the export, not parsed
	Amount      decimal.Decimal
	Currency    string

	ChargebeeCustomerID string
	CustomerEmail       string

	PaymentSource PaymentSource
	TransactionID string
}

// SignedAmount formats the amount with its currency, e.g. "-120.50 EUR".
func (p ProcessedPayment) SignedAmount() string {
	return strings.TrimSpace(p.Amount.StringFixed(2) + " " + p.Currency)
}
