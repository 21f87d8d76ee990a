// Package zkproof issues claims about a citizen without disclosing the data
// behind them. It is the only data channel open to commercial requesters.
//
// StubProver stands in for a real proving system: it evaluates the claim
// against the witness itself and emits a digest-shaped proof marked
// "groth16_stub". The Prover interface is the seam for a real backend.
package zkproof

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Claim names a provable statement.
type Claim string

const (
	ClaimAgeOver18   Claim = "age_over_18"
	ClaimIncomeAbove Claim = "income_above"
	ClaimIsCitizen   Claim = "is_citizen"
)

// Claims lists every supported claim.
var Claims = []Claim{ClaimAgeOver18, ClaimIncomeAbove, ClaimIsCitizen}

// ProofTypeStub marks proofs produced by StubProver.
const ProofTypeStub = "groth16_stub"

var (
	ErrUnsupportedClaim = errors.New("unsupported claim")
	ErrMissingWitness   = errors.New("witness lacks the data this claim needs")
	ErrClaimFalse       = errors.New("claim does not hold for this citizen")
)

// ParseClaim validates a claim name.
func ParseClaim(s string) (Claim, error) {
	for _, c := range Claims {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedClaim, s)
}

// Statement is the public half of a proof request.
type Statement struct {
	Claim Claim
	// Threshold is the income bound for ClaimIncomeAbove.
	Threshold float64
}

// PublicInputs returns the values a verifier sees alongside the proof.
func (s Statement) PublicInputs() []string {
	if s.Claim == ClaimIncomeAbove {
		return []string{string(s.Claim), strconv.FormatFloat(s.Threshold, 'f', -1, 64)}
	}
	return []string{string(s.Claim)}
}

// Witness is the private data a claim is evaluated against. It never leaves
// the prover.
type Witness struct {
	CitizenID   string
	Registered  bool
	DateOfBirth *time.Time
	// AnnualIncome is the latest declared total income, when one is on file.
	AnnualIncome *float64
}

// Proof is the artefact handed to the requester.
type Proof struct {
	Claim        Claim     `json:"claim"`
	Proof        string    `json:"proof"`
	PublicInputs []string  `json:"public_inputs"`
	Verified     bool      `json:"verified"`
	ProofType    string    `json:"proof_type"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Prover produces and checks claim proofs.
type Prover interface {
	Prove(ctx context.Context, st Statement, w Witness) (*Proof, error)
	Verify(ctx context.Context, p *Proof, st Statement) (bool, error)
}
