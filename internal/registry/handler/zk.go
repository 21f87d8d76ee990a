package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/registry/service"
	"github.com/jmerrifield20/bharatchain/internal/zkproof"
	"go.uber.org/zap"
)

// ZKHandler exposes zero-knowledge claims, the only channel through which
// commercial requesters learn anything about a citizen.
type ZKHandler struct {
	svc    *service.ZKService
	logger *zap.Logger
}

// NewZKHandler creates a new ZKHandler.
func NewZKHandler(svc *service.ZKService, logger *zap.Logger) *ZKHandler {
	return &ZKHandler{svc: svc, logger: logger}
}

// Register mounts the zk routes on the given router group.
func (h *ZKHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/zk")
	{
		g.POST("/verify", h.Verify)
		g.POST("/:citizen_id/prove", h.Prove)
	}
}

type proveRequest struct {
	RequesterID string  `json:"requester_id" binding:"required"`
	Claim       string  `json:"claim"        binding:"required"`
	Threshold   float64 `json:"threshold"`
}

// Prove handles POST /zk/:citizen_id/prove. A claim that does not hold
// answers 422 with verified=false.
func (h *ZKHandler) Prove(c *gin.Context) {
	var req proveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	proof, err := h.svc.Prove(c.Request.Context(), service.ProveRequest{
		CitizenID:   c.Param("citizen_id"),
		RequesterID: req.RequesterID,
		Claim:       req.Claim,
		Threshold:   req.Threshold,
		IPAddress:   c.ClientIP(),
	})
	switch {
	case errors.Is(err, zkproof.ErrClaimFalse), errors.Is(err, zkproof.ErrMissingWitness):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"claim":    req.Claim,
			"verified": false,
			"error":    err.Error(),
		})
		return
	case err != nil:
		respondError(c, h.logger, "prove claim", err)
		return
	}
	c.JSON(http.StatusOK, proof)
}

type verifyProofRequest struct {
	Proof     *zkproof.Proof `json:"proof"     binding:"required"`
	Claim     string         `json:"claim"     binding:"required"`
	Threshold float64        `json:"threshold"`
}

// Verify handles POST /zk/verify.
func (h *ZKHandler) Verify(c *gin.Context) {
	var req verifyProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ok, err := h.svc.Verify(c.Request.Context(), req.Proof, req.Claim, req.Threshold)
	if err != nil {
		respondError(c, h.logger, "verify proof", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": req.Claim, "valid": ok})
}
