package consent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"go.uber.org/zap"
)

const (
	// DefaultMaxDurationDays caps every grant unless configured otherwise.
	DefaultMaxDurationDays = 365
	// DefaultDurationDays is used when a request gives no positive duration.
	DefaultDurationDays = 30
)

// Ledger event names written in CONSENT block payloads.
const (
	EventGranted = "CONSENT_GRANTED"
	EventRevoked = "CONSENT_REVOKED"
)

// Citizen-side actor recorded on consent audit entries.
const (
	citizenActorID   = "CITIZEN"
	citizenActorName = "Citizen"
	auditModule      = "consent"
)

// Config tunes grant durations and the transaction bound.
type Config struct {
	MaxDurationDays     int
	DefaultDurationDays int
	// TxTimeout bounds each Grant or Revoke transaction, ledger write
	// included. It must exceed the ledger's own write timeout.
	TxTimeout time.Duration
}

// ProofVerifier checks that a citizen proof (the raw UID) belongs to citizenID.
// It returns ErrCitizenProofMismatch on a mismatch.
type ProofVerifier interface {
	VerifyCitizenProof(ctx context.Context, citizenID, proof string) error
}

// Auditor appends audit entries. *audit.Recorder satisfies this interface.
type Auditor interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// MetricsRecordFunc is called after every lifecycle operation.
type MetricsRecordFunc func(op string, success bool)

// DecisionRecordFunc is called with every permission decision made by Authorize.
type DecisionRecordFunc func(d Decision)

// GrantRequest is the input to Grant.
type GrantRequest struct {
	CitizenID     string
	CitizenProof  string // optional; verified when a ProofVerifier is set
	RequesterID   string
	RequesterName string
	Modules       []string
	DurationDays  int
	IPAddress     string
}

// GrantResult is returned by Grant.
type GrantResult struct {
	GrantID      uuid.UUID
	RequesterID  string
	Modules      []Module
	DurationDays int
	ExpiresAt    *time.Time
	BlockHash    string
	Superseded   int // previously active grants deactivated by this one
}

// RevokeRequest is the input to Revoke.
type RevokeRequest struct {
	CitizenID    string
	CitizenProof string
	RequesterID  string
	IPAddress    string
}

// RevokeResult is returned by Revoke.
type RevokeResult struct {
	BlockHash   string
	Deactivated int
}

// Service manages the grant lifecycle and answers permission checks.
type Service struct {
	store   Store
	ledger  ledger.Ledger
	engine  *Engine
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	cache   GrantCache         // nil = read the store on every check
	proofs  ProofVerifier      // nil = citizen proofs are not checked
	auditor Auditor            // nil = no audit entries
	metrics MetricsRecordFunc  // nil = no metrics
	decided DecisionRecordFunc // nil = no decision metrics
}

// NewService creates a Service. Zero Config fields take the package defaults.
func NewService(store Store, l ledger.Ledger, engine *Engine, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxDurationDays <= 0 {
		cfg.MaxDurationDays = DefaultMaxDurationDays
	}
	if cfg.DefaultDurationDays <= 0 {
		cfg.DefaultDurationDays = DefaultDurationDays
	}
	if cfg.DefaultDurationDays > cfg.MaxDurationDays {
		cfg.DefaultDurationDays = cfg.MaxDurationDays
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTxTimeout
	}
	return &Service{
		store:  store,
		ledger: l,
		engine: engine,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetCache attaches an active-grant cache.
func (s *Service) SetCache(c GrantCache) { s.cache = c }

// SetProofVerifier enables citizen proof checks on Grant and Revoke.
func (s *Service) SetProofVerifier(v ProofVerifier) { s.proofs = v }

// SetAuditor enables CONSENT_GRANTED / CONSENT_REVOKED audit entries.
func (s *Service) SetAuditor(a Auditor) { s.auditor = a }

// SetMetricsRecord sets the lifecycle metrics callback.
func (s *Service) SetMetricsRecord(fn MetricsRecordFunc) { s.metrics = fn }

// SetDecisionRecord sets the permission decision callback.
func (s *Service) SetDecisionRecord(fn DecisionRecordFunc) { s.decided = fn }

// SetClock replaces the clock used for grant timestamps and expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.engine.SetClock(now)
}

// Grant replaces any active grant for the (citizen, requester) pair with a new
// one and anchors it in a CONSENT block. Validation happens before any
// mutation; a ledger failure rolls the whole transition back.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	modules, err := ParseModules(req.Modules)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CitizenID) == "" || strings.TrimSpace(req.RequesterID) == "" {
		return nil, fmt.Errorf("%w: citizen_id and requester_id are required", ErrInvalidRequest)
	}
	if err := s.verifyProof(ctx, req.CitizenID, req.CitizenProof); err != nil {
		return nil, err
	}

	days := s.clampDuration(req.DurationDays)
	now := s.now().Truncate(time.Microsecond)
	expires := now.Add(time.Duration(days) * 24 * time.Hour)
	g := &Grant{
		ID:            uuid.New(),
		CitizenID:     req.CitizenID,
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
		RequesterTier: Classify(req.RequesterID),
		Modules:       modules,
		Active:        true,
		GrantedAt:     now,
		ExpiresAt:     &expires,
	}

	var superseded int
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	err = s.store.RunInTx(txCtx, func(ctx context.Context, tx Tx) error {
		n, err := tx.DeactivatePair(ctx, g.CitizenID, g.RequesterID)
		if err != nil {
			return err
		}
		superseded = n
		if err := tx.Insert(ctx, g); err != nil {
			return err
		}
		b, err := s.ledger.WriteBlock(ctx, ledger.TypeConsent,
			consentPayload(EventGranted, g.CitizenID, g.RequesterID, ModuleNames(modules), now))
		if err != nil {
			return fmt.Errorf("anchor consent grant: %w", err)
		}
		g.BlockHash = b.Hash
		return tx.SetBlockHash(ctx, g.ID, b.Hash)
	})
	s.record("grant", err == nil)
	if err != nil {
		s.logger.Error("consent grant failed",
			zap.String("citizen_id", req.CitizenID),
			zap.String("requester_id", req.RequesterID),
			zap.Error(err),
		)
		return nil, err
	}
	s.invalidate(ctx, g.CitizenID)

	s.logger.Info("consent granted",
		zap.String("citizen_id", g.CitizenID),
		zap.String("requester_id", g.RequesterID),
		zap.String("tier", string(g.RequesterTier)),
		zap.Strings("modules", ModuleNames(modules)),
		zap.Int("duration_days", days),
		zap.Int("superseded", superseded),
	)
	s.audit(ctx, &audit.Entry{
		CitizenID: g.CitizenID,
		ActorID:   citizenActorID,
		ActorName: citizenActorName,
		Action:    audit.ActionConsentGranted,
		Module:    auditModule,
		Details: fmt.Sprintf("Granted %s access to [%s] for %d days",
			g.RequesterID, joinModules(modules), days),
		IPAddress: req.IPAddress,
		BlockHash: g.BlockHash,
	})

	return &GrantResult{
		GrantID:      g.ID,
		RequesterID:  g.RequesterID,
		Modules:      modules,
		DurationDays: days,
		ExpiresAt:    g.ExpiresAt,
		BlockHash:    g.BlockHash,
		Superseded:   superseded,
	}, nil
}

// Revoke deactivates every active grant for the pair and anchors the change in
// a CONSENT block with an empty module list. It returns ErrNoActiveConsent,
// writing nothing, when the pair has no active grant.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	if strings.TrimSpace(req.CitizenID) == "" || strings.TrimSpace(req.RequesterID) == "" {
		return nil, fmt.Errorf("%w: citizen_id and requester_id are required", ErrInvalidRequest)
	}
	if err := s.verifyProof(ctx, req.CitizenID, req.CitizenProof); err != nil {
		return nil, err
	}

	now := s.now().Truncate(time.Microsecond)
	res := &RevokeResult{}
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	err := s.store.RunInTx(txCtx, func(ctx context.Context, tx Tx) error {
		n, err := tx.DeactivatePair(ctx, req.CitizenID, req.RequesterID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoActiveConsent
		}
		b, err := s.ledger.WriteBlock(ctx, ledger.TypeConsent,
			consentPayload(EventRevoked, req.CitizenID, req.RequesterID, []string{}, now))
		if err != nil {
			return fmt.Errorf("anchor consent revocation: %w", err)
		}
		res.Deactivated, res.BlockHash = n, b.Hash
		return nil
	})
	s.record("revoke", err == nil)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, req.CitizenID)

	s.logger.Info("consent revoked",
		zap.String("citizen_id", req.CitizenID),
		zap.String("requester_id", req.RequesterID),
		zap.Int("deactivated", res.Deactivated),
	)
	s.audit(ctx, &audit.Entry{
		CitizenID: req.CitizenID,
		ActorID:   citizenActorID,
		ActorName: citizenActorName,
		Action:    audit.ActionConsentRevoked,
		Module:    auditModule,
		Details:   fmt.Sprintf("Revoked %s access", req.RequesterID),
		IPAddress: req.IPAddress,
		BlockHash: res.BlockHash,
	})
	return res, nil
}

// ListActive returns the citizen's grants with Active set. Expiry is not
// filtered here: a grant past its ExpiresAt stays listed until it is
// superseded or revoked, and the engine treats it as invalid. Use
// Grant.ValidAt to tell the two apart.
func (s *Service) ListActive(ctx context.Context, citizenID string) ([]*Grant, error) {
	return s.store.ListActive(ctx, citizenID)
}

// Authorize evaluates the policy against the citizen's current grants. On
// denial it returns the decision together with a *PermissionDeniedError.
func (s *Service) Authorize(ctx context.Context, citizenID, requesterID string, module Module) (Decision, error) {
	var grants []*Grant
	if Classify(requesterID) == TierRegulated {
		var err error
		grants, err = s.activeGrants(ctx, citizenID)
		if err != nil {
			return Decision{}, err
		}
	}
	d := s.engine.Evaluate(citizenID, requesterID, module, grants)
	if s.decided != nil {
		s.decided(d)
	}
	if !d.Allowed {
		return d, &PermissionDeniedError{Decision: d}
	}
	return d, nil
}

func (s *Service) activeGrants(ctx context.Context, citizenID string) ([]*Grant, error) {
	var (
		gen      uint64
		fillable bool
	)
	if s.cache != nil {
		if gs, ok := s.cache.Get(ctx, citizenID); ok {
			return gs, nil
		}
		// Taken before the store read so an Invalidate that lands while we
		// read makes the fill below a no-op.
		gen, fillable = s.cache.Generation(ctx, citizenID)
	}
	gs, err := s.store.ListActive(ctx, citizenID)
	if err != nil {
		return nil, fmt.Errorf("load active grants: %w", err)
	}
	if fillable {
		s.cache.Set(ctx, citizenID, gen, gs)
	}
	return gs, nil
}

func (s *Service) clampDuration(days int) int {
	if days <= 0 {
		return s.cfg.DefaultDurationDays
	}
	if days > s.cfg.MaxDurationDays {
		return s.cfg.MaxDurationDays
	}
	return days
}

func (s *Service) verifyProof(ctx context.Context, citizenID, proof string) error {
	if s.proofs == nil || proof == "" {
		return nil
	}
	return s.proofs.VerifyCitizenProof(ctx, citizenID, proof)
}

func (s *Service) invalidate(ctx context.Context, citizenID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, citizenID)
	}
}

func (s *Service) record(op string, success bool) {
	if s.metrics != nil {
		s.metrics(op, success)
	}
}

func (s *Service) audit(ctx context.Context, e *audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, e); err != nil {
		s.logger.Warn("consent audit entry not recorded",
			zap.String("citizen_id", e.CitizenID),
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
	}
}

func consentPayload(event, citizenID, requesterID string, modules []string, at time.Time) map[string]any {
	return map[string]any{
		"event":        event,
		"citizen_id":   citizenID,
		"requester_id": requesterID,
		"modules":      modules,
		"timestamp":    at.Format(time.RFC3339Nano),
	}
}
