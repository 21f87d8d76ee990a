package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultListLimit is used when a caller asks for a non-positive limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single page of the audit trail.
	MaxListLimit = 500
)

// Publisher fans committed entries out to an external stream.
type Publisher interface {
	Publish(ctx context.Context, e *Entry) error
}

// Publishers fans one entry out to several publishers. Every publisher is
// tried; their errors are joined.
type Publishers []Publisher

// Publish implements Publisher.
func (ps Publishers) Publish(ctx context.Context, e *Entry) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder appends entries to a Store and mirrors them to an optional
// Publisher. A Store failure is returned to the caller; a Publisher failure is
// logged and otherwise ignored, since the store is the system of record.
type Recorder struct {
	store     Store
	publisher Publisher // nil = no stream
	now       func() time.Time
	logger    *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetPublisher attaches a stream publisher. Pass nil to detach.
func (r *Recorder) SetPublisher(p Publisher) {
	r.publisher = p
}

// Record fills in the ID and timestamp when unset and appends e.
func (r *Recorder) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if err := r.store.Append(ctx, e); err != nil {
		r.logger.Error("audit append failed",
			zap.String("citizen_id", e.CitizenID),
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("audit",
		zap.String("citizen_id", e.CitizenID),
		zap.String("actor_id", e.ActorID),
		zap.String("action", string(e.Action)),
		zap.String("module", e.Module),
	)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.logger.Warn("audit publish failed", zap.String("entry_id", e.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// List returns the citizen's trail newest first. limit is clamped to
// [1, MaxListLimit]; zero or negative selects DefaultListLimit.
func (r *Recorder) List(ctx context.Context, citizenID string, limit int) ([]*Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return r.store.ListByCitizen(ctx, citizenID, limit)
}
