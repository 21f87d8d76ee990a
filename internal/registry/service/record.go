package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
	"github.com/jmerrifield20/bharatchain/internal/registry/repository"
	"github.com/jmerrifield20/bharatchain/internal/vault"
	"go.uber.org/zap"
)

// propertyUIDAttempts bounds retries when a generated property UID collides.
const propertyUIDAttempts = 3

// recordRepo is the persistence interface for the record service.
// *repository.RecordRepository and *repository.MemoryRecordRepository satisfy it.
type recordRepo interface {
	Create(ctx context.Context, rec *model.Record) error
	ListByCitizen(ctx context.Context, citizenID uuid.UUID, module string) ([]*model.Record, error)
	SetBlockHash(ctx context.Context, id uuid.UUID, blockHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// citizenLookup resolves citizen IDs. *CitizenService satisfies it.
type citizenLookup interface {
	Get(ctx context.Context, citizenID string) (*model.Citizen, error)
}

// Authorizer decides whether a requester may touch a citizen's module.
// *consent.Service satisfies this interface.
type Authorizer interface {
	Authorize(ctx context.Context, citizenID, requesterID string, module consent.Module) (consent.Decision, error)
}

// RecordMetricsFunc is called after every record read or write.
type RecordMetricsFunc func(module, op string, success bool)

// Requester identifies who is reading or writing a record.
type Requester struct {
	ID        string
	Name      string
	IPAddress string
}

// RecordResult is returned by Create.
type RecordResult struct {
	RecordID  uuid.UUID `json:"record_id"`
	Reference string    `json:"reference,omitempty"`
	BlockHash string    `json:"block_hash"`
	Status    string    `json:"status"`
}

// RecordView is a decrypted record as returned to an authorized requester.
type RecordView struct {
	ID         uuid.UUID      `json:"id"`
	Kind       string         `json:"kind"`
	Reference  string         `json:"reference,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Data       map[string]any `json:"data"`
	BlockHash  string         `json:"block_hash"`
	RecordDate time.Time      `json:"record_date"`
}

// RecordService reads and writes the health, financial, property and assets
// modules. Every call is gated by the Authorizer.
type RecordService struct {
	repo     recordRepo
	citizens citizenLookup
	authz    Authorizer
	cipher   *vault.Cipher
	ledger   ledger.Ledger
	auditor  Auditor
	metrics  RecordMetricsFunc
	now      func() time.Time
	logger   *zap.Logger
}

// NewRecordService creates a new RecordService.
func NewRecordService(repo recordRepo, citizens citizenLookup, authz Authorizer, cipher *vault.Cipher, l ledger.Ledger, logger *zap.Logger) *RecordService {
	return &RecordService{
		repo:     repo,
		citizens: citizens,
		authz:    authz,
		cipher:   cipher,
		ledger:   l,
		now:      time.Now,
		logger:   logger,
	}
}

// SetAuditor configures the audit trail.
func (s *RecordService) SetAuditor(a Auditor) { s.auditor = a }

// SetMetricsRecord wires a callback invoked after every read or write.
func (s *RecordService) SetMetricsRecord(fn RecordMetricsFunc) { s.metrics = fn }

// Create authorizes req, stores in encrypted, anchors it in the ledger and
// audits the write. A denial is audited as DENIED and returned as a
// *consent.PermissionDeniedError.
func (s *RecordService) Create(ctx context.Context, citizenID string, req Requester, in RecordInput) (*RecordResult, error) {
	module := in.Module()
	res, err := s.create(ctx, citizenID, req, in)
	s.record(module, "write", err == nil)
	return res, err
}

func (s *RecordService) create(ctx context.Context, citizenID string, req Requester, in RecordInput) (*RecordResult, error) {
	module := in.Module()
	c, err := s.authorize(ctx, citizenID, req, module)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var rec *model.Record
	var d *draft
	for attempt := 0; ; attempt++ {
		if d, err = in.draft(now); err != nil {
			return nil, err
		}
		enc, encErr := s.cipher.EncryptJSON(d.sensitive)
		if encErr != nil {
			return nil, fmt.Errorf("encrypt %s record: %w", module, encErr)
		}
		rec = &model.Record{
			CitizenID:     c.ID,
			Module:        string(module),
			Kind:          d.kind,
			Reference:     d.reference,
			Attributes:    d.attrs,
			DataEncrypted: enc,
			RecordDate:    d.recordDate,
		}
		err = s.repo.Create(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateReference) || module != consent.ModuleProperty || attempt+1 >= propertyUIDAttempts {
			return nil, fmt.Errorf("store %s record: %w", module, err)
		}
	}

	payload := map[string]any{
		"event":      d.event,
		"citizen_id": citizenID,
		"record_id":  rec.ID.String(),
		"timestamp":  now.Format(time.RFC3339Nano),
	}
	for k, v := range d.block {
		payload[k] = v
	}
	b, err := s.ledger.WriteBlock(ctx, d.blockType, payload)
	if err != nil {
		if derr := s.repo.Delete(ctx, rec.ID); derr != nil {
			s.logger.Error("orphaned record after failed anchor",
				zap.String("record_id", rec.ID.String()), zap.Error(derr))
		}
		return nil, fmt.Errorf("anchor %s record: %w", module, err)
	}
	if err := s.repo.SetBlockHash(ctx, rec.ID, b.Hash); err != nil {
		if derr := s.repo.Delete(ctx, rec.ID); derr != nil {
			s.logger.Error("orphaned record after failed block hash update",
				zap.String("record_id", rec.ID.String()), zap.Error(derr))
		}
		s.logger.Warn("record block anchored without a row",
			zap.String("record_id", rec.ID.String()), zap.String("block_hash", b.Hash))
		return nil, fmt.Errorf("store %s block hash: %w", module, err)
	}

	s.logger.Info("record created",
		zap.String("module", string(module)),
		zap.String("citizen_id", citizenID),
		zap.String("requester_id", req.ID),
		zap.String("record_id", rec.ID.String()),
	)
	s.audit(ctx, citizenID, req, audit.ActionWrite, module, d.details, b.Hash)

	res := &RecordResult{RecordID: rec.ID, BlockHash: b.Hash, Status: d.status}
	if module == consent.ModuleProperty {
		res.Reference = rec.Reference
	}
	return res, nil
}

// List authorizes req and returns the citizen's decrypted records in module.
// A successful read is audited as READ.
func (s *RecordService) List(ctx context.Context, citizenID string, req Requester, module consent.Module) ([]*RecordView, error) {
	views, err := s.list(ctx, citizenID, req, module)
	s.record(module, "read", err == nil)
	return views, err
}

func (s *RecordService) list(ctx context.Context, citizenID string, req Requester, module consent.Module) ([]*RecordView, error) {
	if module == consent.ModuleIdentity || !module.Valid() {
		return nil, fmt.Errorf("%w: module %q has no records", ErrInvalidInput, module)
	}
	c, err := s.authorize(ctx, citizenID, req, module)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByCitizen(ctx, c.ID, string(module))
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", module, err)
	}

	views := make([]*RecordView, 0, len(recs))
	for _, r := range recs {
		data := map[string]any{}
		if err := s.cipher.DecryptJSON(r.DataEncrypted, &data); err != nil {
			return nil, fmt.Errorf("decrypt record %s: %w", r.ID, err)
		}
		views = append(views, &RecordView{
			ID:         r.ID,
			Kind:       r.Kind,
			Reference:  r.Reference,
			Attributes: r.Attributes,
			Data:       data,
			BlockHash:  r.BlockHash,
			RecordDate: r.RecordDate,
		})
	}

	noun := "records"
	if module == consent.ModuleProperty {
		noun = "properties"
	}
	s.audit(ctx, citizenID, req, audit.ActionRead, module, fmt.Sprintf("Read %d %s", len(views), noun), "")
	return views, nil
}

// LatestDeclaredIncome returns the total income of the most recent financial
// record that declares one, or nil. It bypasses authorization and is only
// used to build zero-knowledge witnesses, which never leave the process.
func (s *RecordService) LatestDeclaredIncome(ctx context.Context, citizenID uuid.UUID) (*float64, error) {
	recs, err := s.repo.ListByCitizen(ctx, citizenID, string(consent.ModuleFinancial))
	if err != nil {
		return nil, fmt.Errorf("list financial records: %w", err)
	}
	for i := len(recs) - 1; i >= 0; i-- {
		var data struct {
			TotalIncome *float64 `json:"total_income"`
		}
		if err := s.cipher.DecryptJSON(recs[i].DataEncrypted, &data); err != nil {
			return nil, fmt.Errorf("decrypt record %s: %w", recs[i].ID, err)
		}
		if data.TotalIncome != nil {
			return data.TotalIncome, nil
		}
	}
	return nil, nil
}

// authorize runs the permission check, auditing denials, and resolves the citizen.
func (s *RecordService) authorize(ctx context.Context, citizenID string, req Requester, module consent.Module) (*model.Citizen, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: requester_id is required", ErrInvalidInput)
	}
	d, err := s.authz.Authorize(ctx, citizenID, req.ID, module)
	if err != nil {
		if errors.Is(err, consent.ErrPermissionDenied) {
			s.audit(ctx, citizenID, req, audit.ActionDenied, module, d.Reason, "")
		}
		return nil, err
	}
	return s.citizens.Get(ctx, citizenID)
}

func (s *RecordService) audit(ctx context.Context, citizenID string, req Requester, action audit.Action, module consent.Module, details, blockHash string) {
	recordAudit(ctx, s.auditor, s.logger, &audit.Entry{
		CitizenID: citizenID,
		ActorID:   req.ID,
		ActorName: req.Name,
		Action:    action,
		Module:    string(module),
		Details:   details,
		IPAddress: req.IPAddress,
		BlockHash: blockHash,
	})
}

func (s *RecordService) record(module consent.Module, op string, success bool) {
	if s.metrics != nil {
		s.metrics(string(module), op, success)
	}
}
