package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/health"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/vault"
	"go.uber.org/zap"
)

// StatusInfo is reported by GET /.
type StatusInfo struct {
	System  string
	Version string
	Backend string
}

// StatusHandler serves the liveness and deep health endpoints.
type StatusHandler struct {
	info    StatusInfo
	ledger  ledger.Ledger
	cipher  *vault.Cipher
	db      health.Pinger // nil when running on in-memory stores
	checker *health.Checker
	logger  *zap.Logger
}

// NewStatusHandler creates a new StatusHandler. db may be nil.
func NewStatusHandler(info StatusInfo, l ledger.Ledger, cipher *vault.Cipher, db health.Pinger, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{info: info, ledger: l, cipher: cipher, db: db, logger: logger}
}

// SetChecker includes the periodic checker's last results in /health-check.
func (h *StatusHandler) SetChecker(c *health.Checker) { h.checker = c }

// Register mounts the status routes on the given router group.
func (h *StatusHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/", h.Root)
	rg.GET("/health-check", h.HealthCheck)
}

// Root handles GET /.
func (h *StatusHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"system":     h.info.System,
		"version":    h.info.Version,
		"status":     "operational",
		"blockchain": h.info.Backend,
	})
}

// HealthCheck handles GET /health-check. It answers 503 when the database
// cannot be reached.
func (h *StatusHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK

	database := dbStatus(ctx, h.db)
	if database != "ok" && database != "in-memory" {
		h.logger.Warn("health-check: database", zap.String("status", database))
		status = http.StatusServiceUnavailable
	}

	resp := gin.H{
		"api":        "ok",
		"database":   database,
		"blockchain": h.ledger.Ping(ctx),
		"crypto":     h.cipher.Status(),
	}
	if h.checker != nil {
		resp["dependencies"] = h.checker.Snapshot()
	}
	c.JSON(status, resp)
}

func dbStatus(ctx context.Context, db health.Pinger) string {
	if db == nil {
		return "in-memory"
	}
	if err := db.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
