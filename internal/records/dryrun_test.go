package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunStore_WritesStayInOverlay(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	base.Put("tbl", Record{ID: "recBase", Fields: map[string]any{"Name": "Acme", "Count": 1}})

	s := NewDryRunStore(base)

	created, err := s.CreateRecord(ctx, "tbl", map[string]any{"Name": "Widget"})
	require.NoError(t, err)
	_, err = s.UpdateRecord(ctx, "tbl", "recBase", map[string]any{"Count": 2})
	require.NoError(t, err)

	// The base store is untouched.
	assert.Equal(t, 1, base.Len("tbl"))
	orig, err := base.FetchTableRecords(ctx, "tbl", "")
	require.NoError(t, err)
	assert.Equal(t, 1, Int(orig[0].Fields, "Count"))

	// Reads see base records with updates applied, then new records.
	all, err := s.FetchTableRecords(ctx, "tbl", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "recBase", all[0].ID)
	assert.Equal(t, "Acme", String(all[0].Fields, "Name"))
	assert.Equal(t, 2, Int(all[0].Fields, "Count"))
	assert.Equal(t, created.ID, all[1].ID)

	assert.Equal(t, 2, s.Pending("tbl"))
	assert.Equal(t, 0, s.Pending("other"))
}

func TestDryRunStore_FilterSeesPendingUpdates(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	base.Put("tbl", Record{ID: "rec1", Fields: map[string]any{"Status": "Unmatched"}})

	s := NewDryRunStore(base)
	_, err := s.UpdateRecord(ctx, "tbl", "rec1", map[string]any{"Status": "Matched"})
	require.NoError(t, err)

	got, err := s.FetchTableRecords(ctx, "tbl", Eq("Status", "Matched"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rec1", got[0].ID)

	got, err = s.FetchTableRecords(ctx, "tbl", Eq("Status", "Unmatched"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDryRunStore_BadFormula(t *testing.T) {
	s := NewDryRunStore(NewMemoryStore())
	_, err := s.FetchTableRecords(context.Background(), "tbl", "OR(1,2)")
	assert.ErrorIs(t, err, ErrUnsupportedFormula)
}
