package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/identity"
	"go.uber.org/zap"
)

// auditLister reads a citizen's audit trail. *audit.Recorder satisfies it.
type auditLister interface {
	List(ctx context.Context, citizenID string, limit int) ([]*audit.Entry, error)
}

// ConsentHandler exposes the consent lifecycle and the audit trail.
type ConsentHandler struct {
	svc    *consent.Service
	trail  auditLister
	tokens *identity.CitizenTokenIssuer // nil = no bearer token checks
	logger *zap.Logger
}

// NewConsentHandler creates a new ConsentHandler. tokens may be nil.
func NewConsentHandler(svc *consent.Service, trail auditLister, tokens *identity.CitizenTokenIssuer, logger *zap.Logger) *ConsentHandler {
	return &ConsentHandler{svc: svc, trail: trail, tokens: tokens, logger: logger}
}

// Register mounts the consent routes on the given router group.
func (h *ConsentHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/consent")
	if h.tokens != nil {
		g.Use(identity.OptionalCitizenToken(h.tokens))
	}
	{
		g.POST("/:citizen_id/grant", h.Grant)
		g.POST("/:citizen_id/revoke", h.Revoke)
		g.GET("/:citizen_id", h.List)
		g.GET("/:citizen_id/audit", h.Audit)
	}
}

type grantRequest struct {
	CitizenUID    string   `json:"citizen_uid"`
	RequesterID   string   `json:"requester_id"   binding:"required"`
	RequesterName string   `json:"requester_name"`
	Modules       []string `json:"modules"        binding:"required"`
	DurationDays  int      `json:"duration_days"`
}

// Grant handles POST /consent/:citizen_id/grant.
func (h *ConsentHandler) Grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Grant(c.Request.Context(), consent.GrantRequest{
		CitizenID:     c.Param("citizen_id"),
		CitizenProof:  req.CitizenUID,
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
		Modules:       req.Modules,
		DurationDays:  req.DurationDays,
		IPAddress:     c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.logger, "grant consent", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"consent_id":    res.GrantID,
		"requester_id":  res.RequesterID,
		"modules":       consent.ModuleNames(res.Modules),
		"duration_days": res.DurationDays,
		"expires_at":    formatExpiry(res.ExpiresAt),
		"block_hash":    res.BlockHash,
		"superseded":    res.Superseded,
		"status":        "granted",
	})
}

type revokeRequest struct {
	CitizenUID  string `json:"citizen_uid"`
	RequesterID string `json:"requester_id" binding:"required"`
}

// Revoke handles POST /consent/:citizen_id/revoke.
func (h *ConsentHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Revoke(c.Request.Context(), consent.RevokeRequest{
		CitizenID:    c.Param("citizen_id"),
		CitizenProof: req.CitizenUID,
		RequesterID:  req.RequesterID,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.logger, "revoke consent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "revoked",
		"block_hash":  res.BlockHash,
		"deactivated": res.Deactivated,
	})
}

type consentView struct {
	ID            string   `json:"id"`
	RequesterID   string   `json:"requester_id"`
	RequesterName string   `json:"requester_name"`
	Tier          string   `json:"tier"`
	Modules       []string `json:"modules"`
	ExpiresAt     string   `json:"expires_at"`
	GrantedAt     string   `json:"granted_at"`
	Expired       bool     `json:"expired"`
	BlockHash     string   `json:"block_hash"`
}

// List handles GET /consent/:citizen_id. Grants past their expiry stay listed
// with expired=true until superseded or revoked.
func (h *ConsentHandler) List(c *gin.Context) {
	grants, err := h.svc.ListActive(c.Request.Context(), c.Param("citizen_id"))
	if err != nil {
		respondError(c, h.logger, "list consents", err)
		return
	}

	now := time.Now()
	out := make([]consentView, 0, len(grants))
	for _, g := range grants {
		out = append(out, consentView{
			ID:            g.ID.String(),
			RequesterID:   g.RequesterID,
			RequesterName: g.RequesterName,
			Tier:          string(g.RequesterTier),
			Modules:       consent.ModuleNames(g.Modules),
			ExpiresAt:     formatExpiry(g.ExpiresAt),
			GrantedAt:     g.GrantedAt.UTC().Format(time.RFC3339),
			Expired:       !g.ValidAt(now),
			BlockHash:     g.BlockHash,
		})
	}
	c.JSON(http.StatusOK, out)
}

type auditView struct {
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	Details   string `json:"details"`
	BlockHash string `json:"block_hash,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Audit handles GET /consent/:citizen_id/audit?limit=50, newest first.
func (h *ConsentHandler) Audit(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.trail.List(c.Request.Context(), c.Param("citizen_id"), limit)
	if err != nil {
		respondError(c, h.logger, "list audit trail", err)
		return
	}

	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			Actor:     e.Actor(),
			Action:    string(e.Action),
			Module:    e.Module,
			Details:   e.Details,
			BlockHash: e.BlockHash,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
