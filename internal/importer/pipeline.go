package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/records"
)

// Payments table field names.
const (
	fieldDate              = "Date"
	fieldDirection         = "Direction"
	fieldSender            = "Sender"
	fieldRawSender         = "Raw Sender"
	fieldDescription       = "Description"
	fieldBankAccount       = "Bank Account"
	fieldAmount            = "Amount"
	fieldCurrency          = "Currency"
	fieldPaymentSource     = "Payment Source"
	fieldTransactionID     = "Transaction ID"
	fieldChargebeeCustomer = "Chargebee Customer"
	fieldCustomerEmail     = "Customer Email"
	fieldClient            = "Client"
	fieldSubscription      = "Subscription"
	fieldMatchStatus       = "Match Status"

	// fieldSubscriptionCustomer is looked up in the subscriptions table.
	fieldSubscriptionCustomer = "Customer ID"
)

// Match status values written to the payments table.
const (
	StatusMatched   = "Matched"
	StatusUnmatched = "Unmatched"
)

// Matcher finds the client a payment came from.
type Matcher interface {
	FindClientMatch(ctx context.Context, p model.ProcessedPayment) (clientID string, ok bool, err error)
	FlushUsage(ctx context.Context) (int, error)
}

// Tables names the datasheets the importer writes to and reads from.
type Tables struct {
	Payments      string
	Subscriptions string // optional; empty disables subscription lookup
}

// Importer writes parsed rows to the payments table one at a time.
type Importer struct {
	store   records.Store
	matcher Matcher
	tables  Tables
	log     zerolog.Logger

	// OnRow, if set, is called after each row with the rows done so far.
	OnRow func(done, total int)
}

// New creates an Importer.
func New(store records.Store, matcher Matcher, tables Tables, log zerolog.Logger) *Importer {
	return &Importer{store: store, matcher: matcher, tables: tables, log: log}
}

// ImportCSV parses a CSV export and imports its rows.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (model.ImportResult, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return model.ImportResult{}, err
	}
	return im.Import(ctx, rows), nil
}

// ImportFile parses a CSV or XLSX export and imports its rows.
func (im *Importer) ImportFile(ctx context.Context, path string) (model.ImportResult, error) {
	rows, err := ParseFile(path)
	if err != nil {
		return model.ImportResult{}, err
	}
	return im.Import(ctx, rows), nil
}

// Import writes each row in order. A failing row is counted and described in
// the result's Errors and never stops the batch. If ctx is cancelled the
// remaining rows are reported as failed.
func (im *Importer) Import(ctx context.Context, rows []ParsedRow) model.ImportResult {
	result := model.ImportResult{Total: len(rows), Errors: []string{}}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			for _, rest := range rows[i:] {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rest.Label(), err))
			}
			im.log.Warn().Err(err).Int("remaining", len(rows)-i).Msg("Import cancelled")
			break
		}

		matched, err := im.importRow(ctx, row)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", row.Label(), err))
			im.log.Warn().Err(err).Int("row", row.Line).Msg("Row failed")
		} else {
			result.Imported++
			if matched {
				result.Matched++
			} else {
				result.Unmatched++
			}
		}

		if im.OnRow != nil {
			im.OnRow(i+1, len(rows))
		}
	}

	if n, err := im.matcher.FlushUsage(ctx); err != nil {
		im.log.Warn().Err(err).Msg("Failed to record some mapping usage")
	} else if n > 0 {
		im.log.Debug().Int("mappings", n).Msg("Recorded mapping usage")
	}

	im.log.Info().
		Int("total", result.Total).
		Int("imported", result.Imported).
		Int("matched", result.Matched).
		Int("unmatched", result.Unmatched).
		Int("failed", result.Failed).
		Msg("Import finished")
	return result
}

func (im *Importer) importRow(ctx context.Context, row ParsedRow) (bool, error) {
	if row.Err != nil {
		return false, row.Err
	}
	p := row.Payment

	clientID, matched, err := im.matcher.FindClientMatch(ctx, p)
	if err != nil {
		return false, fmt.Errorf("matching client: %w", err)
	}

	fields := paymentFields(p)
	if matched {
		fields[fieldClient] = []string{clientID}
		fields[fieldMatchStatus] = StatusMatched
	} else {
		fields[fieldMatchStatus] = StatusUnmatched
	}
	if subID := im.lookupSubscription(ctx, p.ChargebeeCustomerID); subID != "" {
		fields[fieldSubscription] = []string{subID}
	}

	if _, err := im.store.CreateRecord(ctx, im.tables.Payments, fields); err != nil {
		return false, fmt.Errorf("saving payment: %w", err)
	}
	return matched, nil
}

// lookupSubscription returns the subscription record for a Chargebee
// customer. Lookup failures are logged and treated as no subscription.
func (im *Importer) lookupSubscription(ctx context.Context, customerID string) string {
	if customerID == "" || im.tables.Subscriptions == "" {
		return ""
	}
	recs, err := im.store.FetchTableRecords(ctx, im.tables.Subscriptions, records.Eq(fieldSubscriptionCustomer, customerID))
	if err != nil {
		im.log.Warn().Err(err).Str("customer", customerID).Msg("Subscription lookup failed")
		return ""
	}
	if len(recs) == 0 {
		return ""
	}
	return recs[0].ID
}

func paymentFields(p model.ProcessedPayment) map[string]any {
	fields := map[string]any{
		fieldDate:          p.Date,
		fieldDirection:     string(p.Direction),
		fieldSender:        p.Sender,
		fieldRawSender:     p.RawSender,
		fieldDescription:   p.Description,
		fieldBankAccount:   p.BankAccount,
		fieldAmount:        p.Amount.InexactFloat64(),
		fieldCurrency:      p.Currency,
		fieldPaymentSource: string(p.PaymentSource),
	}
	if p.TransactionID != "" {
		fields[fieldTransactionID] = p.TransactionID
	}
	if p.ChargebeeCustomerID != "" {
		fields[fieldChargebeeCustomer] = p.ChargebeeCustomerID
		fields[fieldCustomerEmail] = p.CustomerEmail
	}
	return fields
}
