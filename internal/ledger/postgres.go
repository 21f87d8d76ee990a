package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// chainLockKey is the PostgreSQL advisory lock key that serialises concurrent
// WriteBlock calls. It must be the same on every registry instance.
const chainLockKey = int64(1_159_876_543)

// PostgresChain persists the chain in the chain_blocks table.
// Payloads are stored as their canonical JSON text so hashes recompute exactly.
type PostgresChain struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger *zap.Logger
}

// NewPostgresChain creates a PostgresChain backed by the given connection pool.
func NewPostgresChain(pool *pgxpool.Pool, logger *zap.Logger) *PostgresChain {
	return &PostgresChain{
		pool:   pool,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Connect implements Ledger. It checks connectivity and seeds the genesis
// block when the table is empty.
func (c *PostgresChain) Connect(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %w", ErrUnavailable, err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return classifyPgError("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", chainLockKey); err != nil {
		return classifyPgError("acquire advisory lock", err)
	}

	var n int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM chain_blocks").Scan(&n); err != nil {
		return classifyPgError("count blocks", err)
	}
	if n == 0 {
		if _, err := c.insert(ctx, tx, 0, GenesisHash, TypeGenesis, genesisPayload()); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError("commit genesis", err)
	}

	c.logger.Info("postgres chain ready", zap.Int64("blocks", max(n, 1)))
	return nil
}

// Disconnect implements Ledger. The pool is owned by the caller.
func (c *PostgresChain) Disconnect(_ context.Context) error { return nil }

// Ping implements Ledger.
func (c *PostgresChain) Ping(ctx context.Context) string {
	var n int64
	if err := c.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chain_blocks").Scan(&n); err != nil {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("ok: postgres chain, %d blocks", n)
}

// WriteBlock implements Ledger. It takes a transaction-scoped advisory lock,
// reads the tail, and inserts the new block before committing.
func (c *PostgresChain) WriteBlock(ctx context.Context, blockType string, payload map[string]any) (*Block, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, classifyPgError("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", chainLockKey); err != nil {
		return nil, classifyPgError("acquire advisory lock", err)
	}

	var prevSeq int64
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT sequence, hash FROM chain_blocks ORDER BY sequence DESC LIMIT 1",
	).Scan(&prevSeq, &prevHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: postgres chain has no genesis block; call Connect", ErrUnavailable)
		}
		return nil, classifyPgError("read chain tail", err)
	}

	b, err := c.insert(ctx, tx, uint64(prevSeq+1), prevHash, blockType, normalized)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classifyPgError("commit block", err)
	}

	c.logger.Info("block written",
		zap.Uint64("sequence", b.Sequence),
		zap.String("type", b.Type),
		zap.String("hash", b.Hash[:16]),
	)
	return b.Clone(), nil
}

func (c *PostgresChain) insert(ctx context.Context, tx pgx.Tx, seq uint64, prevHash, blockType string, payload map[string]any) (*Block, error) {
	raw, err := canonicalJSON(payload)
	if err != nil {
		return nil, err
	}
	b := &Block{
		Sequence:  seq,
		Type:      blockType,
		Payload:   payload,
		PrevHash:  prevHash,
		Timestamp: c.now().Truncate(time.Microsecond),
	}
	if b.Hash, err = hashBlock(b); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO chain_blocks (sequence, block_type, payload, prev_hash, hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(b.Sequence), b.Type, string(raw), b.PrevHash, b.Hash, b.Timestamp,
	); err != nil {
		return nil, classifyPgError("insert block", err)
	}
	return b, nil
}

const selectBlockCols = `SELECT sequence, block_type, payload, prev_hash, hash, created_at FROM chain_blocks`

// GetBlock implements Ledger.
func (c *PostgresChain) GetBlock(ctx context.Context, hash string) (*Block, error) {
	rows, err := c.pool.Query(ctx, selectBlockCols+` WHERE hash = $1`, hash)
	if err != nil {
		return nil, classifyPgError("get block", err)
	}
	blocks, err := scanBlocks(rows)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, ErrNotFound
	}
	return blocks[0], nil
}

// GetAllBlocks implements Ledger.
func (c *PostgresChain) GetAllBlocks(ctx context.Context) ([]*Block, error) {
	rows, err := c.pool.Query(ctx, selectBlockCols+` ORDER BY sequence ASC`)
	if err != nil {
		return nil, classifyPgError("list blocks", err)
	}
	return scanBlocks(rows)
}

// Verify implements Verifier. It is O(n) in chain length.
func (c *PostgresChain) Verify(ctx context.Context) error {
	blocks, err := c.GetAllBlocks(ctx)
	if err != nil {
		return err
	}
	return Verify(blocks)
}

func scanBlocks(rows pgx.Rows) ([]*Block, error) {
	defer rows.Close()
	var out []*Block
	for rows.Next() {
		var (
			b   Block
			seq int64
			raw string
		)
		if err := rows.Scan(&seq, &b.Type, &raw, &b.PrevHash, &b.Hash, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		payload, err := decodePayload([]byte(raw))
		if err != nil {
			return nil, err
		}
		b.Sequence = uint64(seq)
		b.Payload = payload
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("iterate blocks", err)
	}
	return out, nil
}

// classifyPgError maps a server-side rejection to ErrWriteFailed and anything
// else (connection loss, timeouts) to ErrUnavailable.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
