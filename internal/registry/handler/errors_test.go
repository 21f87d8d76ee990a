package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/registry/repository"
	"github.com/jmerrifield20/bharatchain/internal/registry/service"
	"github.com/jmerrifield20/bharatchain/internal/zkproof"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: dob", service.ErrInvalidInput), http.StatusBadRequest},
		{&consent.InvalidModuleSetError{Invalid: []string{"dna"}}, http.StatusBadRequest},
		{&consent.PermissionDeniedError{}, http.StatusForbidden},
		{consent.ErrCitizenProofMismatch, http.StatusForbidden},
		{repository.ErrNotFound, http.StatusNotFound},
		{consent.ErrNoActiveConsent, http.StatusNotFound},
		{ledger.ErrNotFound, http.StatusNotFound},
		{repository.ErrDuplicateCitizen, http.StatusConflict},
		{zkproof.ErrClaimFalse, http.StatusUnprocessableEntity},
		{fmt.Errorf("anchor: %w", ledger.ErrUnavailable), http.StatusServiceUnavailable},
		{ledger.ErrVerifyUnsupported, http.StatusNotImplemented},
		{fmt.Errorf("anchor: %w", ledger.ErrWriteFailed), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRateLimiter_429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(RateLimiter(ctx, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimiter(context.Background(), 0))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 10 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("got %d with limiting disabled", w.Code)
		}
	}
}
