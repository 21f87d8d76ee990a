// Package health probes the registry's dependencies (database, chain backend,
// grant cache) on an interval and keeps the latest status of each.
package health

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"go.uber.org/zap"
)

// Status values reported per target.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ProbeFunc returns nil when the dependency is reachable.
type ProbeFunc func(ctx context.Context) error

// Target is one named dependency.
type Target struct {
	Name  string
	Probe ProbeFunc
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger.
func PingProbe(p Pinger) ProbeFunc {
	return p.Ping
}

// LedgerProbe treats any Ping line that does not start with "ok" as a failure.
func LedgerProbe(l ledger.Ledger) ProbeFunc {
	return func(ctx context.Context) error {
		line := l.Ping(ctx)
		if !strings.HasPrefix(line, "ok") {
			return errors.New(line)
		}
		return nil
	}
}

// TransitionFunc is called when a target crosses the fail threshold in
// either direction.
type TransitionFunc func(target, status string)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(target string, success bool)

// TargetStatus is the last known state of one target.
type TargetStatus struct {
	Status    string    `json:"status"`
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic dependency probes.
type Checker struct {
	targets      []Target
	cfg          Config
	mu           sync.Mutex
	state        map[string]*TargetStatus
	onMetrics    MetricsRecordFunc
	onTransition TransitionFunc
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a new Checker.
func New(targets []Target, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	state := make(map[string]*TargetStatus, len(targets))
	for _, t := range targets {
		state[t.Name] = &TargetStatus{Status: StatusUnknown}
	}
	return &Checker{
		targets: targets,
		cfg:     cfg,
		state:   state,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// SetTransition configures the status transition callback.
func (h *Checker) SetTransition(fn TransitionFunc) {
	h.onTransition = fn
}

// Start runs the check loop until ctx is cancelled. The first round runs
// immediately.
func (h *Checker) Start(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// CheckAll probes every target concurrently and waits for all of them.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range h.targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := t.Probe(pctx)
			cancel()
			h.observe(t.Name, err)
		}(t)
	}
	wg.Wait()
}

func (h *Checker) observe(name string, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(name, success)
	}

	h.mu.Lock()
	st := h.state[name]
	prev := st.Status
	st.CheckedAt = h.now()
	if success {
		st.Failures = 0
		st.LastError = ""
		st.Status = StatusHealthy
	} else {
		st.Failures++
		st.LastError = err.Error()
		// A target that has never succeeded is degraded on its first failure.
		if st.Failures >= h.cfg.FailThreshold || prev == StatusUnknown {
			st.Status = StatusDegraded
		}
	}
	next := st.Status
	failures := st.Failures
	h.mu.Unlock()

	if prev == next {
		return
	}
	switch next {
	case StatusHealthy:
		h.logger.Info("health: recovered", zap.String("target", name))
	case StatusDegraded:
		h.logger.Warn("health: degraded",
			zap.String("target", name),
			zap.Int("fail_count", failures),
			zap.Error(err),
		)
	}
	if h.onTransition != nil {
		h.onTransition(name, next)
	}
}

// Snapshot returns a copy of every target's last known status.
func (h *Checker) Snapshot() map[string]TargetStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]TargetStatus, len(h.state))
	for name, st := range h.state {
		out[name] = *st
	}
	return out
}

// Healthy reports whether no target is degraded.
func (h *Checker) Healthy() bool {
	for _, st := range h.Snapshot() {
		if st.Status == StatusDegraded {
			return false
		}
	}
	return true
}
