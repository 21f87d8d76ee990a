package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
)

// RecordRepository persists module records in PostgreSQL.
type RecordRepository struct {
	db *pgxpool.Pool
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts rec. ID and CreatedAt are assigned here.
func (r *RecordRepository) Create(ctx context.Context, rec *model.Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now().UTC()

	_, err = r.db.Exec(ctx, `
		INSERT INTO records (
			id, citizen_id, module, kind, reference, attributes,
			data_encrypted, block_hash, record_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.CitizenID, rec.Module, rec.Kind, rec.Reference, attrs,
		rec.DataEncrypted, rec.BlockHash, rec.RecordDate, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolationFor(err, "reference") || isUniqueViolationFor(err, "property_uid") {
			return ErrDuplicateReference
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// ListByCitizen returns a citizen's records in one module, oldest first.
func (r *RecordRepository) ListByCitizen(ctx context.Context, citizenID uuid.UUID, module string) ([]*model.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, citizen_id, module, kind, reference, attributes,
		       data_encrypted, block_hash, record_date, created_at
		FROM records
		WHERE citizen_id = $1 AND module = $2
		ORDER BY created_at, id`, citizenID, module)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Record, error) {
		var rec model.Record
		var attrs []byte
		if err := row.Scan(
			&rec.ID, &rec.CitizenID, &rec.Module, &rec.Kind, &rec.Reference, &attrs,
			&rec.DataEncrypted, &rec.BlockHash, &rec.RecordDate, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal attributes: %w", err)
			}
		}
		return &rec, nil
	})
}

// SetBlockHash records the ledger block that anchors a record.
func (r *RecordRepository) SetBlockHash(ctx context.Context, id uuid.UUID, blockHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE records SET block_hash = $2 WHERE id = $1`, id, blockHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record whose ledger anchor failed.
func (r *RecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
