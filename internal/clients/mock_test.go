package clients

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/records"
)

var testTables = Tables{Clients: "dstClients", Mappings: "dstMappings"}

var errStoreDown = errors.New("AITable API error (503): service unavailable")

// mockStore wraps a MemoryStore and fails selected operations.
type mockStore struct {
	*records.MemoryStore

	mu          sync.Mutex
	failFetch   map[string]bool
	failCreate  bool
	failUpdate  bool
	fetchCalls  map[string]int
	createCalls int
	updateCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		MemoryStore: records.NewMemoryStore(),
		failFetch:   make(map[string]bool),
		fetchCalls:  make(map[string]int),
	}
}

func (s *mockStore) FetchTableRecords(ctx context.Context, tableID, filter string) ([]records.Record, error) {
	s.mu.Lock()
	s.fetchCalls[tableID]++
	fail := s.failFetch[tableID]
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.MemoryStore.FetchTableRecords(ctx, tableID, filter)
}

func (s *mockStore) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (records.Record, error) {
	s.mu.Lock()
	s.createCalls++
	fail := s.failCreate
	s.mu.Unlock()
	if fail {
		return records.Record{}, errStoreDown
	}
	return s.MemoryStore.CreateRecord(ctx, tableID, fields)
}

func (s *mockStore) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (records.Record, error) {
	s.mu.Lock()
	s.updateCalls++
	fail := s.failUpdate
	s.mu.Unlock()
	if fail {
		return records.Record{}, errStoreDown
	}
	return s.MemoryStore.UpdateRecord(ctx, tableID, recordID, fields)
}

func (s *mockStore) addClient(id, name string) {
	s.Put(testTables.Clients, records.Record{ID: id, Fields: map[string]any{fieldClientName: name}})
}

func (s *mockStore) addMapping(recID string, m model.ClientMapping) {
	s.Put(testTables.Mappings, records.Record{ID: recID, Fields: mappingFields(m)})
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestMatcher(store *mockStore, opts ...Option) *Matcher {
	cache := NewCache(store, testTables, zerolog.Nop())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewMatcher(cache, opts...)
}

func stripePayment(sender string) model.ProcessedPayment {
	return model.ProcessedPayment{
		Direction:     model.DirectionCredit,
		Sender:        sender,
		RawSender:     sender,
		PaymentSource: model.SourceStripe,
	}
}
