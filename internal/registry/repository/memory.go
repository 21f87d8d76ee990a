package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
)

// MemoryCitizenRepository is an in-process CitizenRepository used when no
// database is configured and in tests.
type MemoryCitizenRepository struct {
	mu       sync.RWMutex
	citizens map[uuid.UUID]*model.Citizen
}

// NewMemoryCitizenRepository creates an empty MemoryCitizenRepository.
func NewMemoryCitizenRepository() *MemoryCitizenRepository {
	return &MemoryCitizenRepository{citizens: make(map[uuid.UUID]*model.Citizen)}
}

func (r *MemoryCitizenRepository) Create(_ context.Context, c *model.Citizen) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.citizens {
		if existing.UIDHash == c.UIDHash || existing.DID == c.DID {
			return ErrDuplicateCitizen
		}
	}
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.IsActive = true
	cp := *c
	r.citizens[c.ID] = &cp
	return nil
}

func (r *MemoryCitizenRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Citizen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.citizens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCitizenRepository) GetByUIDHash(_ context.Context, uidHash string) (*model.Citizen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.citizens {
		if c.UIDHash == uidHash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryCitizenRepository) SetBlockHash(_ context.Context, id uuid.UUID, blockHash string) error {
	return r.update(id, func(c *model.Citizen) { c.BlockHash = blockHash })
}

func (r *MemoryCitizenRepository) UpdateBiometrics(_ context.Context, c *model.Citizen) error {
	c.UpdatedAt = time.Now().UTC()
	return r.update(c.ID, func(stored *model.Citizen) {
		stored.IrisHash = c.IrisHash
		stored.FingerprintHash = c.FingerprintHash
		stored.FaceHash = c.FaceHash
		stored.UpdatedAt = c.UpdatedAt
	})
}

func (r *MemoryCitizenRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.citizens[id]; !ok {
		return ErrNotFound
	}
	delete(r.citizens, id)
	return nil
}

func (r *MemoryCitizenRepository) update(id uuid.UUID, fn func(*model.Citizen)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.citizens[id]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}

// MemoryRecordRepository is an in-process RecordRepository.
type MemoryRecordRepository struct {
	mu      sync.RWMutex
	records []*model.Record
}

// NewMemoryRecordRepository creates an empty MemoryRecordRepository.
func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{}
}

func (r *MemoryRecordRepository) Create(_ context.Context, rec *model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Module == "property" && rec.Reference != "" {
		for _, existing := range r.records {
			if existing.Module == rec.Module && existing.Reference == rec.Reference {
				return ErrDuplicateReference
			}
		}
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now().UTC()
	r.records = append(r.records, cloneRecord(rec))
	return nil
}

func (r *MemoryRecordRepository) ListByCitizen(_ context.Context, citizenID uuid.UUID, module string) ([]*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Record
	for _, rec := range r.records {
		if rec.CitizenID == citizenID && rec.Module == module {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (r *MemoryRecordRepository) SetBlockHash(_ context.Context, id uuid.UUID, blockHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			rec.BlockHash = blockHash
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRecordRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// cloneRecord deep-copies rec, round-tripping Attributes through JSON as the
// postgres repository does.
func cloneRecord(rec *model.Record) *model.Record {
	cp := *rec
	if rec.Attributes != nil {
		raw, _ := json.Marshal(rec.Attributes)
		cp.Attributes = nil
		_ = json.Unmarshal(raw, &cp.Attributes)
	}
	return &cp
}
