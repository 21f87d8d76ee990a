// Package service holds the citizen, record and zero-knowledge workflows that
// sit between the HTTP handlers and the repositories. Every workflow that
// touches citizen data is authorized by the consent service, anchored in the
// ledger and recorded in the audit trail.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/registry/repository"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned when a request is missing or has malformed fields.
var ErrInvalidInput = errors.New("invalid input")

// Auditor appends audit entries. *audit.Recorder satisfies this interface.
type Auditor interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// parseCitizenID maps a malformed ID to ErrNotFound: no citizen can have it.
func parseCitizenID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, repository.ErrNotFound
	}
	return u, nil
}

// recordAudit appends e when an auditor is configured. Audit failures are
// logged and never undo the operation that produced the entry.
func recordAudit(ctx context.Context, a Auditor, logger *zap.Logger, e *audit.Entry) {
	if a == nil {
		return
	}
	if err := a.Record(ctx, e); err != nil {
		logger.Warn("audit entry not recorded",
			zap.String("citizen_id", e.CitizenID),
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
	}
}
