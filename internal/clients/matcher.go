package clients

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/payrecon/internal/id"
	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/payment"
)

// DefaultAutoThreshold is the lowest fuzzy-match confidence that creates a
// mapping automatically.
const DefaultAutoThreshold = 70

var (
	// ErrUnknownClient is returned when a mapping names a client id that is
	// not in the clients table.
	ErrUnknownClient = errors.New("unknown client")
	// ErrInvalidMapping is returned for an empty sender, client id or an
	// unrecognized payment source.
	ErrInvalidMapping = errors.New("invalid mapping")
)

// Matcher resolves payments to clients through the mapping cache, falling
// back to fuzzy name matching.
type Matcher struct {
	cache     *Cache
	threshold int
	log       zerolog.Logger
	now       func() time.Time

	// mu serializes find-or-create and every mapping write.
	mu    sync.Mutex
	dirty map[string]struct{}
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the auto-mapping threshold.
func WithThreshold(n int) Option {
	return func(m *Matcher) { m.threshold = n }
}

// WithLogger sets the matcher's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Matcher) { m.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// NewMatcher creates a Matcher reading and writing through cache.
func NewMatcher(cache *Cache, opts ...Option) *Matcher {
	m := &Matcher{
		cache:     cache,
		threshold: DefaultAutoThreshold,
		log:       zerolog.Nop(),
		now:       time.Now,
		dirty:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the matcher's cache.
func (m *Matcher) Cache() *Cache {
	return m.cache
}

// FindClientMatch returns the client id for p's sender. An existing mapping
// wins; otherwise the best fuzzy match at or above the threshold is returned
// and persisted as a new mapping. ok is false when nothing matched.
func (m *Matcher) FindClientMatch(ctx context.Context, p model.ProcessedPayment) (clientID string, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if err := m.cache.Ensure(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Client cache unavailable, matching against what is cached")
	}

	normalized := payment.NormalizeClientName(p.Sender)
	if normalized == "" {
		return "", false, nil
	}
	senderID := id.SenderID(p.Sender, p.PaymentSource)

	m.mu.Lock()
	defer m.mu.Unlock()

	if mapping, hit := m.cache.Mapping(senderID); hit {
		mapping.UsageCount++
		mapping.LastUsed = m.now().UTC()
		m.cache.setMapping(mapping)
		m.dirty[senderID] = struct{}{}
		return mapping.ClientID, true, nil
	}

	var (
		best     model.Client
		bestConf int
	)
	for _, c := range m.cache.Clients() {
		conf := payment.CalculateMatchConfidence(normalized, payment.NormalizeClientName(c.Name))
		if conf > bestConf {
			best, bestConf = c, conf
		}
	}
	if bestConf == 0 || bestConf < m.threshold {
		return "", false, nil
	}

	mapping := model.ClientMapping{
		SenderID:      senderID,
		RawSender:     p.RawSender,
		ClientID:      best.ID,
		Confidence:    bestConf,
		UsageCount:    1,
		LastUsed:      m.now().UTC(),
		PaymentSource: p.PaymentSource,
	}
	if mapping.RawSender == "" {
		mapping.RawSender = p.Sender
	}

	rec, err := m.cache.store.CreateRecord(ctx, m.cache.tables.Mappings, mappingFields(mapping))
	if err != nil {
		return "", false, fmt.Errorf("creating mapping for %q: %w", p.Sender, err)
	}
	mapping.RecordID = rec.ID
	m.cache.setMapping(mapping)

	m.log.Info().
		Str("sender", p.Sender).
		Str("client", best.Name).
		Int("confidence", bestConf).
		Msg("Created automatic client mapping")
	return best.ID, true, nil
}

// CreateManualMapping maps rawSender under source to clientID with full
// confidence, replacing any mapping that sender already has.
func (m *Matcher) CreateManualMapping(ctx context.Context, rawSender, clientID string, source model.PaymentSource) (model.ClientMapping, error) {
	rawSender = strings.TrimSpace(rawSender)
	clientID = strings.TrimSpace(clientID)
	if payment.NormalizeClientName(rawSender) == "" {
		return model.ClientMapping{}, fmt.Errorf("%w: sender %q has no letters or digits", ErrInvalidMapping, rawSender)
	}
	if clientID == "" {
		return model.ClientMapping{}, fmt.Errorf("%w: client id is required", ErrInvalidMapping)
	}
	src, ok := model.ParsePaymentSource(string(source))
	if !ok {
		return model.ClientMapping{}, fmt.Errorf("%w: unknown payment source %q", ErrInvalidMapping, source)
	}

	if err := m.cache.Ensure(ctx); err != nil {
		return model.ClientMapping{}, err
	}
	if _, ok := m.cache.Client(clientID); !ok {
		return model.ClientMapping{}, fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}

	mapping := model.ClientMapping{
		SenderID:      id.SenderID(rawSender, src),
		RawSender:     rawSender,
		ClientID:      clientID,
		Confidence:    model.MaxConfidence,
		UsageCount:    1,
		LastUsed:      m.now().UTC(),
		PaymentSource: src,
		Manual:        true,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.cache.Mapping(mapping.SenderID)
	if exists && existing.RecordID != "" {
		if _, err := m.cache.store.UpdateRecord(ctx, m.cache.tables.Mappings, existing.RecordID, mappingFields(mapping)); err != nil {
			return model.ClientMapping{}, fmt.Errorf("updating mapping %s: %w", mapping.SenderID, err)
		}
		mapping.RecordID = existing.RecordID
	} else {
		rec, err := m.cache.store.CreateRecord(ctx, m.cache.tables.Mappings, mappingFields(mapping))
		if err != nil {
			return model.ClientMapping{}, fmt.Errorf("creating mapping %s: %w", mapping.SenderID, err)
		}
		mapping.RecordID = rec.ID
	}
	m.cache.setMapping(mapping)
	delete(m.dirty, mapping.SenderID)

	m.log.Info().
		Str("sender_id", mapping.SenderID).
		Str("client", clientID).
		Bool("replaced", exists).
		Msg("Saved manual client mapping")
	return mapping, nil
}

// FlushUsage writes usage count and last-used time for every mapping hit
// since the last flush. Failed writes stay pending for the next flush.
func (m *Matcher) FlushUsage(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	senderIDs := make([]string, 0, len(m.dirty))
	for sid := range m.dirty {
		senderIDs = append(senderIDs, sid)
	}
	slices.Sort(senderIDs)

	var (
		flushed int
		errs    []error
	)
	for _, sid := range senderIDs {
		mapping, ok := m.cache.Mapping(sid)
		if !ok || mapping.RecordID == "" {
			delete(m.dirty, sid)
			continue
		}
		fields := map[string]any{
			fieldUsageCount: mapping.UsageCount,
			fieldLastUsed:   mapping.LastUsed.UTC().Format(time.RFC3339),
		}
		if _, err := m.cache.store.UpdateRecord(ctx, m.cache.tables.Mappings, mapping.RecordID, fields); err != nil {
			m.log.Warn().Err(err).Str("sender_id", sid).Msg("Failed to record mapping usage")
			errs = append(errs, fmt.Errorf("%s: %w", sid, err))
			continue
		}
		delete(m.dirty, sid)
		flushed++
	}
	return flushed, errors.Join(errs...)
}

// Pending returns the number of mappings with unflushed usage.
func (m *Matcher) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty)
}

// MappingFilter narrows ListMappings. Zero fields match everything.
type MappingFilter struct {
	Source        model.PaymentSource
	ClientID      string
	MinConfidence int
}

// ListMappings returns cached mappings matching f, most used first.
func (m *Matcher) ListMappings(ctx context.Context, f MappingFilter) ([]model.ClientMapping, error) {
	if err := m.cache.Ensure(ctx); err != nil {
		return nil, err
	}

	var out []model.ClientMapping
	for _, mp := range m.cache.Mappings() {
		if f.Source != "" && mp.PaymentSource != f.Source {
			continue
		}
		if f.ClientID != "" && mp.ClientID != f.ClientID {
			continue
		}
		if mp.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, mp)
	}
	slices.SortFunc(out, func(a, b model.ClientMapping) int {
		if c := cmp.Compare(b.UsageCount, a.UsageCount); c != 0 {
			return c
		}
		return cmp.Compare(a.SenderID, b.SenderID)
	})
	return out, nil
}
