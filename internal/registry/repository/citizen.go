package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
)

// CitizenRepository persists citizens in PostgreSQL.
type CitizenRepository struct {
	db *pgxpool.Pool
}

// NewCitizenRepository creates a new CitizenRepository.
func NewCitizenRepository(db *pgxpool.Pool) *CitizenRepository {
	return &CitizenRepository{db: db}
}

const citizenCols = `id, did, uid_hash, full_name_encrypted, dob_encrypted, gender_encrypted,
	address_encrypted, iris_hash, fingerprint_hash, face_hash, block_hash, is_active,
	created_at, updated_at`

// Create inserts c. ID, CreatedAt and UpdatedAt are assigned here.
func (r *CitizenRepository) Create(ctx context.Context, c *model.Citizen) error {
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.IsActive = true

	q := `INSERT INTO citizens (` + citizenCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx, q,
		c.ID, c.DID, c.UIDHash, c.FullNameEncrypted, c.DOBEncrypted, c.GenderEncrypted,
		c.AddressEncrypted, c.IrisHash, c.FingerprintHash, c.FaceHash, c.BlockHash, c.IsActive,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolationFor(err, "uid_hash") || isUniqueViolationFor(err, "did") {
			return ErrDuplicateCitizen
		}
		return fmt.Errorf("create citizen: %w", err)
	}
	return nil
}

// GetByID retrieves a citizen by internal UUID.
func (r *CitizenRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Citizen, error) {
	return r.scanOne(ctx, `SELECT `+citizenCols+` FROM citizens WHERE id = $1`, id)
}

// GetByUIDHash retrieves a citizen by salted UID hash.
func (r *CitizenRepository) GetByUIDHash(ctx context.Context, uidHash string) (*model.Citizen, error) {
	return r.scanOne(ctx, `SELECT `+citizenCols+` FROM citizens WHERE uid_hash = $1`, uidHash)
}

// SetBlockHash records the IDENTITY block that anchors the citizen.
func (r *CitizenRepository) SetBlockHash(ctx context.Context, id uuid.UUID, blockHash string) error {
	return r.exec(ctx, `UPDATE citizens SET block_hash = $2, updated_at = $3 WHERE id = $1`,
		id, blockHash, time.Now().UTC())
}

// UpdateBiometrics stores the three biometric templates of c.
func (r *CitizenRepository) UpdateBiometrics(ctx context.Context, c *model.Citizen) error {
	c.UpdatedAt = time.Now().UTC()
	return r.exec(ctx, `
		UPDATE citizens SET
			iris_hash        = $2,
			fingerprint_hash = $3,
			face_hash        = $4,
			updated_at       = $5
		WHERE id = $1`,
		c.ID, c.IrisHash, c.FingerprintHash, c.FaceHash, c.UpdatedAt)
}

// Delete removes a citizen. It only undoes a registration whose ledger
// anchor failed.
func (r *CitizenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM citizens WHERE id = $1`, id)
}

func (r *CitizenRepository) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CitizenRepository) scanOne(ctx context.Context, q string, args ...any) (*model.Citizen, error) {
	var c model.Citizen
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&c.ID, &c.DID, &c.UIDHash, &c.FullNameEncrypted, &c.DOBEncrypted, &c.GenderEncrypted,
		&c.AddressEncrypted, &c.IrisHash, &c.FingerprintHash, &c.FaceHash, &c.BlockHash, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan citizen: %w", err)
	}
	return &c, nil
}
