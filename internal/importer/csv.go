package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/payment"
)

// Bank export column headers. The direction column has an empty header.
const (
	colDirection   = ""
	colSender      = "Sender/receiver"
	colDescription = "Description"
	colBankAccount = "Bank account"
	colDate        = "Date"
	colAmount      = "Amount"
	colCurrency    = "Currency"
)

var requiredColumns = []string{colDirection, colSender, colDescription, colBankAccount, colDate, colAmount, colCurrency}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// ParsedRow is one data row of a bank export. Rows whose amount could not be
// parsed carry Err and are reported as failed by the importer.
type ParsedRow struct {
	Line      int // data row number, starting at 1
	Payment   model.ProcessedPayment
	RawAmount string
	Err       error
}

// Label identifies the row in error messages, e.g. "row 2 (2024-01-02 -85.00 EUR)".
func (r ParsedRow) Label() string {
	amount := r.Payment.SignedAmount()
	if r.Err != nil {
		amount = strings.TrimSpace(r.RawAmount + " " + r.Payment.Currency)
	}
	return fmt.Sprintf("row %d (%s %s)", r.Line, r.Payment.Date, amount)
}

// CSVParser parses bank exports in CSV form.
type CSVParser struct{}

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// Parse reads a CSV bank export.
func (p *CSVParser) Parse(r io.Reader) ([]ParsedRow, error) {
	return ParseCSV(r)
}

// ParseCSV reads a bank export with a header row. Every data row produces
// exactly one ParsedRow; ragged rows read missing cells as empty.
func ParseCSV(r io.Reader) ([]ParsedRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []ParsedRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		rows = append(rows, buildRow(len(rows)+1, cols, rec))
	}
	return rows, nil
}

// columnIndex maps a required column to its position in the header.
type columnIndex map[string]int

func indexColumns(header []string) (columnIndex, error) {
	cols := make(columnIndex, len(requiredColumns))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for _, want := range requiredColumns {
			if _, seen := cols[want]; seen {
				continue
			}
			if strings.EqualFold(h, want) {
				cols[want] = i
				break
			}
		}
	}

	var missing []string
	for _, want := range requiredColumns {
		if _, ok := cols[want]; !ok {
			missing = append(missing, fmt.Sprintf("%q", want))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columnIndex) get(rec []string, col string) string {
	i := c[col]
	if i >= len(rec) {
		return ""
	}
	return rec[i]
}

func buildRow(line int, cols columnIndex, rec []string) ParsedRow {
	sender := cols.get(rec, colSender)
	desc := cols.get(rec, colDescription)
	account := cols.get(rec, colBankAccount)
	rawAmount := cols.get(rec, colAmount)

	p := model.ProcessedPayment{
		Direction:   model.Direction(strings.ToUpper(strings.TrimSpace(cols.get(rec, colDirection)))),
		Sender:      sender,
		RawSender:   sender,
		Description: desc,
		BankAccount: account,
		Date:        cols.get(rec, colDate),
		Currency:    strings.TrimSpace(cols.get(rec, colCurrency)),
	}
	p.ChargebeeCustomerID, p.CustomerEmail, _ = payment.ExtractChargebeeCustomer(desc)
	p.PaymentSource = payment.DetectSource(desc, account)
	p.TransactionID, _ = payment.ExtractTransactionID(p)

	row := ParsedRow{Line: line, RawAmount: rawAmount}
	amount, err := payment.ParseAmount(rawAmount)
	if err != nil {
		row.Err = err
	}
	p.Amount = amount
	row.Payment = p
	return row
}
