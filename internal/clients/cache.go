// Package clients matches payment senders to client records and maintains
// the sender-to-client mapping table.
package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/payrecon/internal/id"
	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/records"
)

// Field names in the clients and client mappings tables.
const (
	fieldClientName = "Name"

	fieldSenderID      = "Sender ID"
	fieldRawSender     = "Raw Sender"
	fieldClient        = "Client"
	fieldConfidence    = "Confidence"
	fieldUsageCount    = "Usage Count"
	fieldLastUsed      = "Last Used"
	fieldPaymentSource = "Payment Source"
	fieldManual        = "Manual"
)

// Tables names the datasheets the cache reads.
type Tables struct {
	Clients  string
	Mappings string
}

// Cache holds the clients and client mappings tables in memory. It loads
// lazily on the first Ensure and is safe for concurrent use.
type Cache struct {
	store  records.Store
	tables Tables
	log    zerolog.Logger

	loadMu sync.Mutex

	mu       sync.RWMutex
	loaded   bool
	clients  map[string]model.Client
	order    []string // client ids in load order
	mappings map[string]model.ClientMapping
}

// NewCache creates an empty cache over store.
func NewCache(store records.Store, tables Tables, log zerolog.Logger) *Cache {
	return &Cache{
		store:    store,
		tables:   tables,
		log:      log,
		clients:  make(map[string]model.Client),
		mappings: make(map[string]model.ClientMapping),
	}
}

// Ensure loads both tables unless a previous load succeeded. A failed load
// leaves the cache unloaded so the next call retries.
func (c *Cache) Ensure(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if c.Loaded() {
		return nil
	}
	return c.load(ctx)
}

// Reload discards the cached tables and loads them again.
func (c *Cache) Reload(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.Invalidate()
	return c.load(ctx)
}

// Invalidate drops everything cached.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = false
	c.clients = make(map[string]model.Client)
	c.order = nil
	c.mappings = make(map[string]model.ClientMapping)
}

// Loaded reports whether both tables have been loaded.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Cache) load(ctx context.Context) error {
	clientRecs, err := c.store.FetchTableRecords(ctx, c.tables.Clients, "")
	if err != nil {
		return fmt.Errorf("loading clients: %w", err)
	}

	clients := make(map[string]model.Client, len(clientRecs))
	order := make([]string, 0, len(clientRecs))
	for _, r := range clientRecs {
		if _, dup := clients[r.ID]; dup {
			continue
		}
		clients[r.ID] = model.Client{ID: r.ID, Name: records.String(r.Fields, fieldClientName)}
		order = append(order, r.ID)
	}

	mappingRecs, err := c.store.FetchTableRecords(ctx, c.tables.Mappings, "")
	if err != nil {
		return fmt.Errorf("loading client mappings: %w", err)
	}

	mappings := make(map[string]model.ClientMapping, len(mappingRecs))
	skipped := 0
	for _, r := range mappingRecs {
		m, ok := mappingFromRecord(r)
		if !ok {
			skipped++
			continue
		}
		if prev, dup := mappings[m.SenderID]; dup && !supersedes(m, prev) {
			continue
		}
		mappings[m.SenderID] = m
	}

	// Both tables are published together or not at all.
	c.mu.Lock()
	c.clients = clients
	c.order = order
	c.mappings = mappings
	c.loaded = true
	c.mu.Unlock()

	c.log.Debug().
		Int("clients", len(clients)).
		Int("mappings", len(mappings)).
		Int("skipped", skipped).
		Msg("Loaded client cache")
	return nil
}

// supersedes reports whether m should replace prev for the same sender:
// higher confidence wins, then the more recently used.
func supersedes(m, prev model.ClientMapping) bool {
	if m.Confidence != prev.Confidence {
		return m.Confidence > prev.Confidence
	}
	return m.LastUsed.After(prev.LastUsed)
}

// Mapping returns the cached mapping for senderID.
func (c *Cache) Mapping(senderID string) (model.ClientMapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.mappings[senderID]
	return m, ok
}

// Client returns the cached client with the given record id.
func (c *Cache) Client(clientID string) (model.Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.clients[clientID]
	return cl, ok
}

// Clients returns all cached clients in load order.
func (c *Cache) Clients() []model.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Client, 0, len(c.order))
	for _, cid := range c.order {
		out = append(out, c.clients[cid])
	}
	return out
}

// Mappings returns all cached mappings in no particular order.
func (c *Cache) Mappings() []model.ClientMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.ClientMapping, 0, len(c.mappings))
	for _, m := range c.mappings {
		out = append(out, m)
	}
	return out
}

func (c *Cache) setMapping(m model.ClientMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings[m.SenderID] = m
}

func mappingFromRecord(r records.Record) (model.ClientMapping, bool) {
	senderID := records.String(r.Fields, fieldSenderID)
	clientID := records.Link(r.Fields, fieldClient)
	if senderID == "" || clientID == "" {
		return model.ClientMapping{}, false
	}

	source, ok := model.ParsePaymentSource(records.String(r.Fields, fieldPaymentSource))
	if !ok {
		if _, src, split := id.SplitSenderID(senderID); split {
			source = src
		} else {
			source = model.SourceUnknown
		}
	}

	return model.ClientMapping{
		RecordID:      r.ID,
		SenderID:      senderID,
		RawSender:     records.String(r.Fields, fieldRawSender),
		ClientID:      clientID,
		Confidence:    records.Int(r.Fields, fieldConfidence),
		UsageCount:    records.Int(r.Fields, fieldUsageCount),
		LastUsed:      records.Time(r.Fields, fieldLastUsed),
		PaymentSource: source,
		Manual:        records.Bool(r.Fields, fieldManual),
	}, true
}

func mappingFields(m model.ClientMapping) map[string]any {
	fields := map[string]any{
		fieldSenderID:      m.SenderID,
		fieldRawSender:     m.RawSender,
		fieldClient:        []string{m.ClientID},
		fieldConfidence:    m.Confidence,
		fieldUsageCount:    m.UsageCount,
		fieldPaymentSource: string(m.PaymentSource),
		fieldManual:        m.Manual,
	}
	if !m.LastUsed.IsZero() {
		fields[fieldLastUsed] = m.LastUsed.UTC().Format(time.RFC3339)
	}
	return fields
}
