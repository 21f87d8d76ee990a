package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/identity"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/consent/:citizen_id", mw, func(c *gin.Context) {
		sub := ""
		if claims := identity.CitizenClaimsFromCtx(c); claims != nil {
			sub = claims.Subject
		}
		c.String(http.StatusOK, sub)
	})
	return r
}

func do(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireCitizenToken(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	token, _, _ := ti.Issue("c-1", "did:bharatchain:x")
	r := newRouter(identity.RequireCitizenToken(ti))

	tests := []struct {
		name string
		path string
		auth string
		want int
	}{
		{"no header", "/consent/c-1", "", http.StatusUnauthorized},
		{"not bearer", "/consent/c-1", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/consent/c-1", "Bearer nope", http.StatusUnauthorized},
		{"other citizen", "/consent/c-2", "Bearer " + token, http.StatusForbidden},
		{"owner", "/consent/c-1", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.path, tt.auth)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestOptionalCitizenToken(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	token, _, _ := ti.Issue("c-1", "")
	r := newRouter(identity.OptionalCitizenToken(ti))

	if w := do(r, "/consent/c-1", ""); w.Code != http.StatusOK || w.Body.String() != "" {
		t.Errorf("anonymous: %d %q", w.Code, w.Body.String())
	}
	if w := do(r, "/consent/c-1", "Bearer "+token); w.Body.String() != "c-1" {
		t.Errorf("claims not set: %q", w.Body.String())
	}
	if w := do(r, "/consent/c-1", "Bearer bad"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", w.Code)
	}
}
