// Package records defines the record-store contract shared by the AITable
// client and the local stores, plus helpers for reading loosely typed fields
// and building filter formulas.
package records

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record id does not exist in a table.
var ErrNotFound = errors.New("record not found")

// Record is one row of a datasheet.
type Record struct {
	ID     string         `json:"recordId"`
	Fields map[string]any `json:"fields"`
}

// Store is the remote table API the matcher and importer depend on.
type Store interface {
	// FetchTableRecords returns every record in tableID matching filter.
	// An empty filter returns all records.
	FetchTableRecords(ctx context.Context, tableID, filter string) ([]Record, error)
	CreateRecord(ctx context.Context, tableID string, fields map[string]any) (Record, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (Record, error)
}
