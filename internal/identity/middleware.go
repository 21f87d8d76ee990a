package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxCitizenClaims = "identity.citizen_claims"

// RequireCitizenToken is a Gin middleware that requires a valid Bearer citizen
// session token. When the route has a :citizen_id parameter the token subject
// must match it.
func RequireCitizenToken(tokens *CitizenTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, tokens) {
			return
		}
		if CitizenClaimsFromCtx(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}
		c.Next()
	}
}

// OptionalCitizenToken verifies a Bearer token when one is present and lets
// anonymous requests through. A present but invalid token is still rejected.
func OptionalCitizenToken(tokens *CitizenTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, tokens) {
			return
		}
		c.Next()
	}
}

// authenticate stores verified claims on c. It returns false after aborting.
func authenticate(c *gin.Context, tokens *CitizenTokenIssuer) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return true
	}
	tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return false
	}
	claims, err := tokens.Verify(tokenStr)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error()})
		return false
	}
	if id := c.Param("citizen_id"); id != "" && id != claims.Subject {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not belong to this citizen"})
		return false
	}
	c.Set(ctxCitizenClaims, claims)
	return true
}

// CitizenClaimsFromCtx returns the verified claims, or nil for anonymous requests.
func CitizenClaimsFromCtx(c *gin.Context) *CitizenClaims {
	v, _ := c.Get(ctxCitizenClaims)
	claims, _ := v.(*CitizenClaims)
	return claims
}
