package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/zkproof"
	"go.uber.org/zap"
)

const zkAuditModule = "zk"

// ProveRequest asks for a claim about a citizen.
type ProveRequest struct {
	CitizenID   string
	RequesterID string
	Claim       string
	Threshold   float64
	IPAddress   string
}

// ZKService issues zero-knowledge claims. No consent grant is needed: the
// requester learns only whether the claim holds.
type ZKService struct {
	citizens *CitizenService
	records  *RecordService
	prover   zkproof.Prover
	auditor  Auditor
	logger   *zap.Logger
}

// NewZKService creates a new ZKService. records may be nil, in which case
// income claims always lack a witness.
func NewZKService(citizens *CitizenService, records *RecordService, prover zkproof.Prover, logger *zap.Logger) *ZKService {
	return &ZKService{citizens: citizens, records: records, prover: prover, logger: logger}
}

// SetAuditor configures the audit trail.
func (s *ZKService) SetAuditor(a Auditor) { s.auditor = a }

// Prove evaluates the claim against the citizen's private data and returns a
// proof. Every attempt is audited as VERIFY.
func (s *ZKService) Prove(ctx context.Context, req ProveRequest) (*zkproof.Proof, error) {
	claim, err := zkproof.ParseClaim(req.Claim)
	if err != nil {
		return nil, err
	}
	if req.RequesterID == "" {
		return nil, fmt.Errorf("%w: requester_id is required", ErrInvalidInput)
	}
	c, err := s.citizens.Get(ctx, req.CitizenID)
	if err != nil {
		return nil, err
	}

	w := zkproof.Witness{CitizenID: c.ID.String(), Registered: c.IsActive}
	switch claim {
	case zkproof.ClaimAgeOver18:
		dob, err := s.citizens.DateOfBirth(ctx, req.CitizenID)
		if err != nil {
			return nil, err
		}
		w.DateOfBirth = &dob
	case zkproof.ClaimIncomeAbove:
		if s.records != nil {
			if w.AnnualIncome, err = s.records.LatestDeclaredIncome(ctx, c.ID); err != nil {
				return nil, err
			}
		}
	}

	st := zkproof.Statement{Claim: claim, Threshold: req.Threshold}
	proof, err := s.prover.Prove(ctx, st, w)

	details := fmt.Sprintf("Proved %s", claim)
	if err != nil {
		details = fmt.Sprintf("Claim %s not proven", claim)
	}
	recordAudit(ctx, s.auditor, s.logger, &audit.Entry{
		CitizenID: req.CitizenID,
		ActorID:   req.RequesterID,
		Action:    audit.ActionVerify,
		Module:    zkAuditModule,
		Details:   details,
		IPAddress: req.IPAddress,
	})
	if err != nil && !errors.Is(err, zkproof.ErrClaimFalse) && !errors.Is(err, zkproof.ErrMissingWitness) {
		return nil, fmt.Errorf("prove %s: %w", claim, err)
	}
	return proof, err
}

// Verify checks a proof previously issued for the statement.
func (s *ZKService) Verify(ctx context.Context, proof *zkproof.Proof, claim string, threshold float64) (bool, error) {
	c, err := zkproof.ParseClaim(claim)
	if err != nil {
		return false, err
	}
	return s.prover.Verify(ctx, proof, zkproof.Statement{Claim: c, Threshold: threshold})
}
