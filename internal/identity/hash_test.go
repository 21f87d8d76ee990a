package identity_test

import (
	"strings"
	"testing"

	"github.com/jmerrifield20/bharatchain/internal/identity"
)

func TestHasher_HashUID(t *testing.T) {
	h := identity.NewHasher("pepper", 1000)
	a := h.HashUID("123412341234")
	if len(a) != 64 {
		t.Fatalf("HashUID length = %d, want 64 hex chars", len(a))
	}
	if a != identity.SHA3("123412341234pepper") {
		t.Error("HashUID is not SHA3(uid + secret)")
	}
	if a == identity.NewHasher("other", 1000).HashUID("123412341234") {
		t.Error("secret does not change the hash")
	}
}

func TestDID_DeterministicFromUIDHash(t *testing.T) {
	uidHash := identity.NewHasher("pepper", 1000).HashUID("123412341234")
	did := identity.DID(uidHash)
	if !strings.HasPrefix(did, identity.DIDMethod) {
		t.Fatalf("DID %q lacks method prefix", did)
	}
	if got := len(strings.TrimPrefix(did, identity.DIDMethod)); got != 32 {
		t.Errorf("DID suffix length = %d, want 32", got)
	}
	if did != identity.DID(uidHash) {
		t.Error("DID not deterministic")
	}
}

func TestHasher_Biometric(t *testing.T) {
	h := identity.NewHasher("pepper", 1000)
	uidHash := h.HashUID("123412341234")
	scan := []byte("iris-template-bytes")

	stored, err := h.HashBiometric(scan, uidHash)
	if err != nil {
		t.Fatal(err)
	}
	if !h.VerifyBiometric(scan, uidHash, stored) {
		t.Error("matching sample rejected")
	}
	if h.VerifyBiometric([]byte("someone else"), uidHash, stored) {
		t.Error("different sample accepted")
	}
	if h.VerifyBiometric(scan, h.HashUID("999999999999"), stored) {
		t.Error("sample accepted under another citizen's salt")
	}
	if h.VerifyBiometric(scan, uidHash, "") {
		t.Error("empty stored template matched")
	}
	if _, err := h.HashBiometric(nil, uidHash); err != identity.ErrEmptyBiometric {
		t.Errorf("HashBiometric(nil) error = %v", err)
	}
	if again, _ := identity.NewHasher("pepper", 2000).HashBiometric(scan, uidHash); again == stored {
		t.Error("iteration count does not affect the template")
	}
}

func TestNewDIDDocument(t *testing.T) {
	doc := identity.NewDIDDocument("did:bharatchain:abc", "deadbeef")
	if doc.Context != "https://www.w3.org/ns/did/v1" {
		t.Errorf("Context = %q", doc.Context)
	}
	if len(doc.VerificationMethod) != 1 {
		t.Fatalf("expected one verification method")
	}
	vm := doc.VerificationMethod[0]
	if vm.ID != "did:bharatchain:abc#keys-1" || vm.BlockchainAccountID != "deadbeef" || vm.Controller != doc.ID {
		t.Errorf("unexpected verification method %+v", vm)
	}
	if doc.Authentication[0] != vm.ID {
		t.Errorf("authentication does not reference key")
	}
}
