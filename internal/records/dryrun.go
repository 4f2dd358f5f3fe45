package records

import (
	"context"
	"errors"
	"maps"
)

// DryRunStore reads through to a base store and keeps every write in memory,
// so an import can be previewed without touching the real tables.
type DryRunStore struct {
	base    Store
	overlay *MemoryStore
}

// NewDryRunStore wraps base.
func NewDryRunStore(base Store) *DryRunStore {
	return &DryRunStore{base: base, overlay: NewMemoryStore()}
}

// FetchTableRecords returns base records, with pending updates applied,
// followed by records created during the dry run.
func (s *DryRunStore) FetchTableRecords(ctx context.Context, tableID, filter string) ([]Record, error) {
	pred, err := ParseFormula(filter)
	if err != nil {
		return nil, err
	}

	// Filter after overlaying so pending updates are visible to the predicate.
	base, err := s.base.FetchTableRecords(ctx, tableID, "")
	if err != nil {
		return nil, err
	}
	pending, err := s.overlay.FetchTableRecords(ctx, tableID, "")
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Record, len(pending))
	for _, r := range pending {
		byID[r.ID] = r
	}

	var out []Record
	for _, r := range base {
		if p, ok := byID[r.ID]; ok {
			merged := maps.Clone(r.Fields)
			maps.Copy(merged, p.Fields)
			r = Record{ID: r.ID, Fields: merged}
			delete(byID, r.ID)
		}
		if pred(r.Fields) {
			out = append(out, r)
		}
	}
	for _, r := range pending {
		if _, ok := byID[r.ID]; ok && pred(r.Fields) {
			out = append(out, r)
		}
	}
	return out, nil
}

// CreateRecord records the write in memory only.
func (s *DryRunStore) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (Record, error) {
	return s.overlay.CreateRecord(ctx, tableID, fields)
}

// UpdateRecord records the write in memory only.
func (s *DryRunStore) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (Record, error) {
	rec, err := s.overlay.UpdateRecord(ctx, tableID, recordID, fields)
	if errors.Is(err, ErrNotFound) {
		s.overlay.Put(tableID, Record{ID: recordID, Fields: maps.Clone(fields)})
		return Record{ID: recordID, Fields: maps.Clone(fields)}, nil
	}
	return rec, err
}

// Pending returns the number of records created or updated in tableID
// during the run.
func (s *DryRunStore) Pending(tableID string) int {
	return s.overlay.Len(tableID)
}
