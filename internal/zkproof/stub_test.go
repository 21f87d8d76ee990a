package zkproof

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func newProver() *StubProver {
	p := NewStubProver(zap.NewNop())
	p.SetClock(func() time.Time { return fixedNow })
	return p
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func income(v float64) *float64 { return &v }

func TestStubProver_Prove(t *testing.T) {
	tests := []struct {
		name    string
		st      Statement
		w       Witness
		wantErr error
	}{
		{"adult", Statement{Claim: ClaimAgeOver18}, Witness{DateOfBirth: date(1990, 1, 1)}, nil},
		{"eighteenth birthday today", Statement{Claim: ClaimAgeOver18}, Witness{DateOfBirth: date(2008, 8, 15)}, nil},
		{"one day short", Statement{Claim: ClaimAgeOver18}, Witness{DateOfBirth: date(2008, 8, 16)}, ErrClaimFalse},
		{"no dob", Statement{Claim: ClaimAgeOver18}, Witness{}, ErrMissingWitness},
		{"income above", Statement{Claim: ClaimIncomeAbove, Threshold: 500000}, Witness{AnnualIncome: income(750000)}, nil},
		{"income equal is not above", Statement{Claim: ClaimIncomeAbove, Threshold: 500000}, Witness{AnnualIncome: income(500000)}, ErrClaimFalse},
		{"no income on file", Statement{Claim: ClaimIncomeAbove, Threshold: 1}, Witness{}, ErrMissingWitness},
		{"citizen", Statement{Claim: ClaimIsCitizen}, Witness{Registered: true}, nil},
		{"not registered", Statement{Claim: ClaimIsCitizen}, Witness{}, ErrClaimFalse},
		{"unknown claim", Statement{Claim: "likes_cricket"}, Witness{Registered: true}, ErrUnsupportedClaim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, err := newProver().Prove(context.Background(), tt.st, tt.w)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Prove() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Prove() error: %v", err)
			}
			if proof.ProofType != ProofTypeStub || !proof.Verified || len(proof.Proof) != 64 {
				t.Errorf("unexpected proof %+v", proof)
			}
			if !proof.GeneratedAt.Equal(fixedNow) {
				t.Errorf("GeneratedAt = %v", proof.GeneratedAt)
			}
		})
	}
}

func TestStubProver_Verify(t *testing.T) {
	p := newProver()
	ctx := context.Background()
	st := Statement{Claim: ClaimIncomeAbove, Threshold: 100000}
	proof, err := p.Prove(ctx, st, Witness{AnnualIncome: income(250000)})
	if err != nil {
		t.Fatal(err)
	}
	if got := proof.PublicInputs; len(got) != 2 || got[1] != "100000" {
		t.Errorf("PublicInputs = %v", got)
	}

	if ok, err := p.Verify(ctx, proof, st); err != nil || !ok {
		t.Errorf("Verify(own proof) = %v, %v", ok, err)
	}
	if ok, _ := p.Verify(ctx, proof, Statement{Claim: ClaimIncomeAbove, Threshold: 50}); ok {
		t.Error("proof verified against a different threshold")
	}
	if ok, _ := p.Verify(ctx, proof, Statement{Claim: ClaimIsCitizen}); ok {
		t.Error("proof verified against a different claim")
	}
	forged := *proof
	forged.Proof = "zz"
	if ok, _ := p.Verify(ctx, &forged, st); ok {
		t.Error("malformed proof verified")
	}
	if ok, _ := p.Verify(ctx, nil, st); ok {
		t.Error("nil proof verified")
	}
	if _, err := p.Verify(ctx, proof, Statement{Claim: "bogus"}); !errors.Is(err, ErrUnsupportedClaim) {
		t.Errorf("Verify(bogus claim) error = %v", err)
	}
}

func TestParseClaim(t *testing.T) {
	if c, err := ParseClaim("is_citizen"); err != nil || c != ClaimIsCitizen {
		t.Errorf("ParseClaim(is_citizen) = %q, %v", c, err)
	}
	if _, err := ParseClaim("IS_CITIZEN"); !errors.Is(err, ErrUnsupportedClaim) {
		t.Errorf("claim names are case sensitive, got %v", err)
	}
}
