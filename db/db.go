// Package db persists the match list in PostgreSQL as a single named slot
// holding the JSON-serialized ordered sequence of match records.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/feedscan/models"
)

// DefaultSlot is the slot name used when none is configured
const DefaultSlot = "matches"

// Config contains database configuration
type Config struct {
	DSN  string // PostgreSQL connection string
	Slot string // named slot holding the match list
}

// DefaultConfig returns default database configuration
func DefaultConfig() Config {
	return Config{Slot: DefaultSlot}
}

// Store wraps the database connection and implements the match list
// operations. Dedup scans the full persisted list on every append; the scan
// order and comparison are the dedup semantics. The store-level mutex keeps
// an append's read and write sub-steps from interleaving with another
// mutation of the same slot.
type Store struct {
	conn *sql.DB
	slot string
	mu   sync.Mutex
}

// New creates a new database-backed match store
func New(config Config) (*Store, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slot := config.Slot
	if slot == "" {
		slot = DefaultSlot
	}

	return &Store{conn: conn, slot: slot}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Append inserts rec unless it duplicates an existing record per the
// disjunctive URL/description rule. Returns true if the record was inserted.
func (s *Store) Append(ctx context.Context, rec models.MatchRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	list, err := loadSlot(ctx, tx, s.slot)
	if err != nil {
		return false, err
	}

	if models.Duplicate(list, rec) {
		return false, nil
	}

	list = append(list, rec)
	if err := saveSlot(ctx, tx, s.slot, list); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// List returns the full match list in insertion order.
func (s *Store) List(ctx context.Context) ([]models.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jsonData string
	err := s.conn.QueryRowContext(ctx,
		"SELECT data FROM feedscan_slots WHERE name = $1", s.slot,
	).Scan(&jsonData)
	if err == sql.ErrNoRows {
		return []models.MatchRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot: %w", err)
	}

	var list []models.MatchRecord
	if err := json.Unmarshal([]byte(jsonData), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match list: %w", err)
	}
	if list == nil {
		list = []models.MatchRecord{}
	}

	return list, nil
}

// Clear empties the match list.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM feedscan_slots WHERE name = $1", s.slot,
	)
	if err != nil {
		return fmt.Errorf("failed to clear slot: %w", err)
	}
	return nil
}

// Count returns the number of persisted match records.
func (s *Store) Count(ctx context.Context) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadSlot(ctx context.Context, q queryer, slot string) ([]models.MatchRecord, error) {
	var jsonData string
	err := q.QueryRowContext(ctx,
		"SELECT data FROM feedscan_slots WHERE name = $1 FOR UPDATE", slot,
	).Scan(&jsonData)
	if err == sql.ErrNoRows {
		return []models.MatchRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot: %w", err)
	}

	var list []models.MatchRecord
	if err := json.Unmarshal([]byte(jsonData), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match list: %w", err)
	}
	return list, nil
}

func saveSlot(ctx context.Context, q queryer, slot string, list []models.MatchRecord) error {
	jsonData, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal match list: %w", err)
	}

	query := `
		INSERT INTO feedscan_slots (name, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, slot, string(jsonData), time.Now()); err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}
