package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateFetchUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.CreateRecord(ctx, "tbl", map[string]any{"Name": "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	_, err = s.CreateRecord(ctx, "tbl", map[string]any{"Name": "Widget"})
	require.NoError(t, err)

	all, err := s.FetchTableRecords(ctx, "tbl", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Acme", all[0].Fields["Name"])

	got, err := s.FetchTableRecords(ctx, "tbl", Eq("Name", "Widget"))
	require.NoError(t, err)
	require.Len(t, got, 1)

	upd, err := s.UpdateRecord(ctx, "tbl", a.ID, map[string]any{"Count": 2})
	require.NoError(t, err)
	assert.Equal(t, "Acme", upd.Fields["Name"])
	assert.Equal(t, 2, upd.Fields["Count"])
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec, err := s.CreateRecord(ctx, "tbl", map[string]any{"Name": "Acme"})
	require.NoError(t, err)

	rec.Fields["Name"] = "Mutated"
	all, err := s.FetchTableRecords(ctx, "tbl", "")
	require.NoError(t, err)
	assert.Equal(t, "Acme", all[0].Fields["Name"])
}

func TestMemoryStore_UpdateNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.UpdateRecord(context.Background(), "tbl", "recMissing", map[string]any{"A": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_BadFormula(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FetchTableRecords(context.Background(), "tbl", "OR(1)")
	assert.ErrorIs(t, err, ErrUnsupportedFormula)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().CreateRecord(ctx, "tbl", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDryRunStore(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	base.Put("clients", Record{ID: "recA", Fields: map[string]any{"Name": "Acme"}})

	dry := NewDryRunStore(base)

	created, err := dry.CreateRecord(ctx, "payments", map[string]any{"Amount": 10.0})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 0, base.Len("payments"), "base must not see dry-run writes")
	assert.Equal(t, 1, dry.Pending("payments"))

	_, err = dry.UpdateRecord(ctx, "clients", "recA", map[string]any{"Name": "Acme Renamed"})
	require.NoError(t, err)

	clients, err := dry.FetchTableRecords(ctx, "clients", Eq("Name", "Acme Renamed"))
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "recA", clients[0].ID)

	baseClients, err := base.FetchTableRecords(ctx, "clients", "")
	require.NoError(t, err)
	assert.Equal(t, "Acme", baseClients[0].Fields["Name"])

	payments, err := dry.FetchTableRecords(ctx, "payments", "")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}
