// Package localstore keeps datasheet records in a local SQLite file so the
// pipeline can run without AITable.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/cleared-dev/payrecon/internal/id"
	"github.com/cleared-dev/payrecon/internal/records"
)

// Store implements records.Store on SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchTableRecords returns records of tableID in insertion order, filtered
// in Go with records.ParseFormula.
func (s *Store) FetchTableRecords(ctx context.Context, tableID, filter string) ([]records.Record, error) {
	pred, err := records.ParseFormula(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fields FROM records
		WHERE table_id = ?
		ORDER BY seq
	`, tableID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", tableID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.Record
	for rows.Next() {
		var (
			recID string
			raw   string
		)
		if err := rows.Scan(&recID, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", tableID, err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", recID, err)
		}
		if pred(fields) {
			out = append(out, records.Record{ID: recID, Fields: fields})
		}
	}
	return out, rows.Err()
}

// CreateRecord inserts a record under a new id.
func (s *Store) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (records.Record, error) {
	raw, err := encodeFields(fields)
	if err != nil {
		return records.Record{}, err
	}

	recID := id.NewRecordID()
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO records (table_id, id, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, tableID, recID, raw, now, now); err != nil {
		return records.Record{}, fmt.Errorf("inserting into %s: %w", tableID, err)
	}

	// Round-trip through JSON so callers see the same shapes a fetch returns.
	stored, err := decodeFields(raw)
	if err != nil {
		return records.Record{}, err
	}
	s.log.Debug().Str("table", tableID).Str("record", recID).Msg("Created local record")
	return records.Record{ID: recID, Fields: stored}, nil
}

// UpdateRecord merges fields into an existing record.
func (s *Store) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (records.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return records.Record{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `
		SELECT fields FROM records WHERE table_id = ? AND id = ?
	`, tableID, recordID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, fmt.Errorf("%s/%s: %w", tableID, recordID, records.ErrNotFound)
	}
	if err != nil {
		return records.Record{}, fmt.Errorf("reading %s/%s: %w", tableID, recordID, err)
	}

	current, err := decodeFields(raw)
	if err != nil {
		return records.Record{}, fmt.Errorf("record %s: %w", recordID, err)
	}
	maps.Copy(current, fields)

	merged, err := encodeFields(current)
	if err != nil {
		return records.Record{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET fields = ?, updated_at = ? WHERE table_id = ? AND id = ?
	`, merged, time.Now().UTC(), tableID, recordID); err != nil {
		return records.Record{}, fmt.Errorf("updating %s/%s: %w", tableID, recordID, err)
	}
	if err := tx.Commit(); err != nil {
		return records.Record{}, fmt.Errorf("committing update: %w", err)
	}

	stored, err := decodeFields(merged)
	if err != nil {
		return records.Record{}, err
	}
	return records.Record{ID: recordID, Fields: stored}, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	return fields, nil
}
