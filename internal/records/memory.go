package records

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/cleared-dev/payrecon/internal/id"
)

// MemoryStore is an in-process Store. Records keep insertion order per table.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Record)}
}

// FetchTableRecords returns copies of the records in tableID matching filter.
func (s *MemoryStore) FetchTableRecords(ctx context.Context, tableID, filter string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred, err := ParseFormula(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, r := range s.tables[tableID] {
		if pred(r.Fields) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

// CreateRecord appends a record with a fresh id.
func (s *MemoryStore) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec := Record{ID: id.NewRecordID(), Fields: maps.Clone(fields)}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}

	s.mu.Lock()
	s.tables[tableID] = append(s.tables[tableID], rec)
	s.mu.Unlock()

	return cloneRecord(rec), nil
}

// UpdateRecord merges fields into an existing record.
func (s *MemoryStore) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.tables[tableID]
	for i := range recs {
		if recs[i].ID == recordID {
			if recs[i].Fields == nil {
				recs[i].Fields = map[string]any{}
			}
			maps.Copy(recs[i].Fields, fields)
			return cloneRecord(recs[i]), nil
		}
	}
	return Record{}, fmt.Errorf("%s/%s: %w", tableID, recordID, ErrNotFound)
}

// Put inserts or replaces a record with a caller-chosen id.
func (s *MemoryStore) Put(tableID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = cloneRecord(rec)
	recs := s.tables[tableID]
	for i := range recs {
		if recs[i].ID == rec.ID {
			recs[i] = rec
			return
		}
	}
	s.tables[tableID] = append(recs, rec)
}

// Len returns the number of records in tableID.
func (s *MemoryStore) Len(tableID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[tableID])
}

func cloneRecord(r Record) Record {
	return Record{ID: r.ID, Fields: maps.Clone(r.Fields)}
}
