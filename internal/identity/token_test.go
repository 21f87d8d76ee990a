package identity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/identity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenIssuer(t *testing.T, ttl time.Duration) *identity.CitizenTokenIssuer {
	t.Helper()
	ti, err := identity.NewCitizenTokenIssuer(testSecret, "bharatchain", ttl)
	if err != nil {
		t.Fatalf("NewCitizenTokenIssuer() error: %v", err)
	}
	return ti
}

func TestCitizenTokenIssuer_IssueVerify(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)

	token, exp, err := ti.Issue("c-123", "did:bharatchain:abc")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}
	if d := time.Until(exp); d < 59*time.Minute || d > time.Hour {
		t.Errorf("expiry %v not about an hour away", exp)
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Subject != "c-123" {
		t.Errorf("Subject: got %q, want c-123", claims.Subject)
	}
	if claims.DID != "did:bharatchain:abc" {
		t.Errorf("DID: got %q", claims.DID)
	}
}

func TestCitizenTokenIssuer_DefaultTTL(t *testing.T) {
	if got := newTestTokenIssuer(t, 0).TTL(); got != 30*time.Minute {
		t.Errorf("TTL() = %v, want 30m", got)
	}
}

func TestCitizenTokenIssuer_Expired(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Nanosecond)
	token, _, err := ti.Issue("c-1", "")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestCitizenTokenIssuer_Tampered(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	token, _, _ := ti.Issue("c-1", "")

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'a' {
		sig[mid] = 'b'
	} else {
		sig[mid] = 'a'
	}
	if _, err := ti.Verify(parts[0] + "." + parts[1] + "." + string(sig)); err == nil {
		t.Error("expected error for tampered token, got nil")
	}
}

func TestCitizenTokenIssuer_WrongSecretOrIssuer(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	token, _, _ := ti.Issue("c-1", "")

	other, _ := identity.NewCitizenTokenIssuer(strings.Repeat("z", 32), "bharatchain", time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Error("expected error for wrong secret")
	}
	elsewhere, _ := identity.NewCitizenTokenIssuer(testSecret, "someone-else", time.Hour)
	if _, err := elsewhere.Verify(token); err == nil {
		t.Error("expected error for wrong issuer")
	}
}

func TestNewCitizenTokenIssuer_WeakSecret(t *testing.T) {
	if _, err := identity.NewCitizenTokenIssuer("short", "bharatchain", 0); err != identity.ErrWeakSecret {
		t.Errorf("error = %v, want ErrWeakSecret", err)
	}
}
