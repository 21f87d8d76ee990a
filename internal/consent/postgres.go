package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists grants in the consent_grants table. A partial unique
// index on (citizen_id, requester_id) WHERE active backs the single-active-grant
// rule; a transaction-scoped advisory lock on the pair serialises writers.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx implements Store.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTxTimeout)
		defer cancel()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin consent tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit consent tx: %w", err)
	}
	return nil
}

const selectGrantCols = `SELECT id, citizen_id, requester_id, requester_name, requester_tier,
	modules, active, granted_at, expires_at, block_hash FROM consent_grants`

// ListActive implements Store.
func (s *PostgresStore) ListActive(ctx context.Context, citizenID string) ([]*Grant, error) {
	rows, err := s.db.Query(ctx, selectGrantCols+` WHERE citizen_id = $1 AND active ORDER BY granted_at`, citizenID)
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	return pgx.CollectRows(rows, scanGrant)
}

// History returns every grant for the citizen in creation order.
func (s *PostgresStore) History(ctx context.Context, citizenID string) ([]*Grant, error) {
	rows, err := s.db.Query(ctx, selectGrantCols+` WHERE citizen_id = $1 ORDER BY granted_at`, citizenID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return pgx.CollectRows(rows, scanGrant)
}

func scanGrant(row pgx.CollectableRow) (*Grant, error) {
	var (
		g       Grant
		tier    string
		modules []string
		expires *time.Time
	)
	if err := row.Scan(&g.ID, &g.CitizenID, &g.RequesterID, &g.RequesterName, &tier,
		&modules, &g.Active, &g.GrantedAt, &expires, &g.BlockHash); err != nil {
		return nil, fmt.Errorf("scan grant: %w", err)
	}
	g.RequesterTier = Tier(tier)
	g.Modules = make([]Module, len(modules))
	for i, m := range modules {
		g.Modules[i] = Module(m)
	}
	g.GrantedAt = g.GrantedAt.UTC()
	if expires != nil {
		t := expires.UTC()
		g.ExpiresAt = &t
	}
	return &g, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) DeactivatePair(ctx context.Context, citizenID, requesterID string) (int, error) {
	if _, err := t.tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, citizenID, requesterID,
	); err != nil {
		return 0, fmt.Errorf("lock consent pair: %w", err)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE consent_grants SET active = false
		 WHERE citizen_id = $1 AND requester_id = $2 AND active`,
		citizenID, requesterID,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate grants: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *postgresTx) Insert(ctx context.Context, g *Grant) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO consent_grants
			(id, citizen_id, requester_id, requester_name, requester_tier, modules, active, granted_at, expires_at, block_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		g.ID, g.CitizenID, g.RequesterID, g.RequesterName, string(g.RequesterTier),
		ModuleNames(g.Modules), g.Active, g.GrantedAt, g.ExpiresAt, g.BlockHash,
	)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

func (t *postgresTx) SetBlockHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE consent_grants SET block_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("set grant block hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}
