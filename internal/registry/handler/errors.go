package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/registry/repository"
	"github.com/jmerrifield20/bharatchain/internal/registry/service"
	"github.com/jmerrifield20/bharatchain/internal/zkproof"
	"go.uber.org/zap"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, consent.ErrInvalidRequest),
		errors.Is(err, consent.ErrInvalidModuleSet),
		errors.Is(err, zkproof.ErrUnsupportedClaim):
		return http.StatusBadRequest
	case errors.Is(err, consent.ErrPermissionDenied),
		errors.Is(err, consent.ErrCitizenProofMismatch):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, consent.ErrNoActiveConsent),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateCitizen),
		errors.Is(err, repository.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, zkproof.ErrClaimFalse),
		errors.Is(err, zkproof.ErrMissingWitness):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrVerifyUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, ledger.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Unexpected errors are logged and
// their text is not sent to the client.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
	case http.StatusServiceUnavailable:
		logger.Warn(op, zap.Error(err))
		c.JSON(status, gin.H{"error": ledger.ErrUnavailable.Error()})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

// badRequest reports a binding or query error.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
