package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// ListByCitizen returns up to limit entries for the citizen, newest first.
	ListByCitizen(ctx context.Context, citizenID string, limit int) ([]*Entry, error)
}

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	cp := *e
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

// ListByCitizen implements Store.
func (s *MemoryStore) ListByCitizen(_ context.Context, citizenID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.entries {
		if e.CitizenID == citizenID {
			cp := *e
			out = append(out, &cp)
		}
	}
	// Stable so entries sharing a timestamp keep newest-appended first after
	// the reversal below.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PostgresStore persists entries in the audit_logs table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	const q = `
		INSERT INTO audit_logs
			(id, citizen_id, actor_id, actor_name, action, module, details, ip_address, block_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.Exec(ctx, q,
		e.ID, e.CitizenID, e.ActorID, e.ActorName, string(e.Action), e.Module,
		e.Details, e.IPAddress, e.BlockHash, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByCitizen implements Store.
func (s *PostgresStore) ListByCitizen(ctx context.Context, citizenID string, limit int) ([]*Entry, error) {
	const q = `
		SELECT id, citizen_id, actor_id, actor_name, action, module, details, ip_address, block_hash, created_at
		FROM audit_logs
		WHERE citizen_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`
	rows, err := s.db.Query(ctx, q, citizenID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var (
			e      Entry
			action string
		)
		err := row.Scan(&e.ID, &e.CitizenID, &e.ActorID, &e.ActorName, &action, &e.Module,
			&e.Details, &e.IPAddress, &e.BlockHash, &e.Timestamp)
		e.Action = Action(action)
		return &e, err
	})
}
