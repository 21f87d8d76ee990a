package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/identity"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
	"github.com/jmerrifield20/bharatchain/internal/registry/service"
	"go.uber.org/zap"
)

// IdentityHandler exposes citizen registration and identity endpoints.
type IdentityHandler struct {
	svc    *service.CitizenService
	tokens *identity.CitizenTokenIssuer // nil = no bearer token checks
	logger *zap.Logger
}

// NewIdentityHandler creates a new IdentityHandler. tokens may be nil.
func NewIdentityHandler(svc *service.CitizenService, tokens *identity.CitizenTokenIssuer, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the identity routes on the given router group.
func (h *IdentityHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/identity")
	{
		g.POST("/register", h.RegisterCitizen)
		g.GET("/:citizen_id", h.Get)
		g.GET("/:citizen_id/did", h.DID)
		g.POST("/:citizen_id/token", h.IssueToken)

		self := g.Group("")
		if h.tokens != nil {
			self.Use(identity.OptionalCitizenToken(h.tokens))
		}
		self.POST("/:citizen_id/biometrics", h.EnrollBiometrics)
		self.POST("/:citizen_id/verify-biometric", h.VerifyBiometric)
	}
}

type registerRequest struct {
	UID      string `json:"uid"       binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	DOB      string `json:"dob"       binding:"required"`
	Gender   string `json:"gender"`
	Address  string `json:"address"`
}

// RegisterCitizen handles POST /identity/register.
func (h *IdentityHandler) RegisterCitizen(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Register(c.Request.Context(), service.RegisterRequest{
		UID:       req.UID,
		FullName:  req.FullName,
		DOB:       req.DOB,
		Gender:    req.Gender,
		Address:   req.Address,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.logger, "register citizen", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"citizen_id": res.CitizenID,
		"did":        res.DID,
		"block_hash": res.BlockHash,
		"message":    "Identity registered successfully on BharatChain.",
	})
}

// Get handles GET /identity/:citizen_id.
func (h *IdentityHandler) Get(c *gin.Context) {
	citizen, err := h.svc.Get(c.Request.Context(), c.Param("citizen_id"))
	if err != nil {
		respondError(c, h.logger, "get citizen", err)
		return
	}
	c.JSON(http.StatusOK, citizen.View())
}

// DID handles GET /identity/:citizen_id/did.
func (h *IdentityHandler) DID(c *gin.Context) {
	doc, err := h.svc.DIDDocument(c.Request.Context(), c.Param("citizen_id"))
	if err != nil {
		respondError(c, h.logger, "did document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type enrollRequest struct {
	// Samples maps a biometric kind (iris, fingerprint, face) to its raw
	// template. Templates are hashed server-side and never stored.
	Samples map[string]string `json:"samples" binding:"required"`
}

// EnrollBiometrics handles POST /identity/:citizen_id/biometrics.
func (h *IdentityHandler) EnrollBiometrics(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	samples := make(map[model.BiometricKind][]byte, len(req.Samples))
	for kind, sample := range req.Samples {
		samples[model.BiometricKind(kind)] = []byte(sample)
	}

	enrolled, err := h.svc.EnrollBiometrics(c.Request.Context(), c.Param("citizen_id"), samples, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, "enroll biometrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrolled": enrolled})
}

type verifyBiometricRequest struct {
	Kind       string `json:"kind"   binding:"required"`
	Sample     string `json:"sample" binding:"required"`
	VerifierID string `json:"verifier_id"`
}

// VerifyBiometric handles POST /identity/:citizen_id/verify-biometric.
func (h *IdentityHandler) VerifyBiometric(c *gin.Context) {
	var req verifyBiometricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	match, err := h.svc.VerifyBiometric(c.Request.Context(), c.Param("citizen_id"),
		model.BiometricKind(req.Kind), []byte(req.Sample), req.VerifierID, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, "verify biometric", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": req.Kind, "match": match})
}

type tokenRequest struct {
	CitizenUID string `json:"citizen_uid" binding:"required"`
}

// IssueToken handles POST /identity/:citizen_id/token. The citizen proves
// ownership with their UID and receives a short-lived bearer token.
func (h *IdentityHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, exp, err := h.svc.IssueToken(c.Request.Context(), c.Param("citizen_id"), req.CitizenUID)
	if err != nil {
		respondError(c, h.logger, "issue token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(time.Until(exp).Seconds()),
		"expires_at":   exp.UTC().Format(time.RFC3339),
	})
}
