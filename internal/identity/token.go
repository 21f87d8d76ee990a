package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrWeakSecret is returned when the signing secret is too short for HS256.
var ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")

// CitizenClaims are the JWT claims of a citizen session token.
// Subject is the citizen ID.
type CitizenClaims struct {
	jwt.RegisteredClaims
	DID string `json:"did"`
}

// CitizenTokenIssuer issues and verifies citizen session tokens signed with HS256.
type CitizenTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCitizenTokenIssuer creates a CitizenTokenIssuer.
//
//	issuer: the "iss" claim value.
//	ttl: token lifetime (default: 30 minutes).
func NewCitizenTokenIssuer(secret, issuer string, ttl time.Duration) (*CitizenTokenIssuer, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &CitizenTokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue creates a signed session token for citizenID and returns it with its expiry.
func (t *CitizenTokenIssuer) Issue(citizenID, did string) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := CitizenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   citizenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		DID: did,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign citizen token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a citizen session token, returning its claims.
func (t *CitizenTokenIssuer) Verify(tokenStr string) (*CitizenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CitizenClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify citizen token: %w", err)
	}
	claims, ok := token.Claims.(*CitizenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid citizen token claims")
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *CitizenTokenIssuer) TTL() time.Duration { return t.ttl }
