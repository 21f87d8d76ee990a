// Package consent is the access-control core. Every read or write of citizen
// data passes through Engine, and every change to the grant set goes through
// Service, which anchors it in the ledger.
//
// Policy, in order:
//  1. Classify the requester.
//  2. Government: allow.
//  3. Regulated: allow iff the requester holds a currently valid grant that
//     covers the module.
//  4. Commercial: deny. Commercial requesters may only receive ZK claims.
package consent

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Decision is the outcome of one permission check, with enough context for
// the caller to write an audit entry.
type Decision struct {
	CitizenID   string    `json:"citizen_id"`
	RequesterID string    `json:"requester_id"`
	Module      Module    `json:"module"`
	Tier        Tier      `json:"tier"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	GrantID     uuid.UUID `json:"grant_id,omitempty"` // the grant that allowed a regulated request
}

// Decision reasons.
const (
	ReasonGovernment  = "government access"
	ReasonGrant       = "active consent grant"
	ReasonNoGrant     = "no valid consent grant for module"
	ReasonCommercial  = "commercial requesters receive zero-knowledge claims only"
	ReasonUnknownTier = "unrecognised tier"
)

// Engine evaluates the tiered access policy. It performs no I/O; callers fetch
// the citizen's active grants beforehand.
type Engine struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates an Engine using the wall clock.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetClock replaces the clock used for expiry checks.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Evaluate applies the policy to one (citizen, requester, module) triple.
func (e *Engine) Evaluate(citizenID, requesterID string, module Module, activeGrants []*Grant) Decision {
	d := Decision{
		CitizenID:   citizenID,
		RequesterID: requesterID,
		Module:      module,
		Tier:        Classify(requesterID),
	}

	switch d.Tier {
	case TierGovernment:
		d.Allowed, d.Reason = true, ReasonGovernment
	case TierRegulated:
		d.Reason = ReasonNoGrant
		now := e.now()
		for _, g := range activeGrants {
			if g.RequesterID == requesterID && g.Covers(module) && g.ValidAt(now) {
				d.Allowed, d.Reason, d.GrantID = true, ReasonGrant, g.ID
				break
			}
		}
	case TierCommercial:
		d.Reason = ReasonCommercial
	default:
		d.Reason = ReasonUnknownTier
	}

	e.log(d)
	return d
}

// Decide is Evaluate reduced to allow/deny.
func (e *Engine) Decide(citizenID, requesterID string, module Module, activeGrants []*Grant) bool {
	return e.Evaluate(citizenID, requesterID, module, activeGrants).Allowed
}

// Enforce returns a *PermissionDeniedError when access is denied.
func (e *Engine) Enforce(citizenID, requesterID string, module Module, activeGrants []*Grant) error {
	d := e.Evaluate(citizenID, requesterID, module, activeGrants)
	if !d.Allowed {
		return &PermissionDeniedError{Decision: d}
	}
	return nil
}

func (e *Engine) log(d Decision) {
	fields := []zap.Field{
		zap.String("tier", string(d.Tier)),
		zap.String("requester_id", d.RequesterID),
		zap.String("module", string(d.Module)),
		zap.String("citizen_id", d.CitizenID),
	}
	if d.Allowed {
		e.logger.Info("access granted", fields...)
		return
	}
	e.logger.Warn("access denied", append(fields, zap.String("reason", d.Reason))...)
}
