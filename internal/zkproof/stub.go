package zkproof

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// StubProver implements Prover without a proving system.
type StubProver struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewStubProver creates a StubProver.
func NewStubProver(logger *zap.Logger) *StubProver {
	return &StubProver{now: time.Now, logger: logger}
}

// SetClock overrides the time source used for age checks and timestamps.
func (p *StubProver) SetClock(now func() time.Time) { p.now = now }

// Prove evaluates st against w and returns a proof when the claim holds.
func (p *StubProver) Prove(_ context.Context, st Statement, w Witness) (*Proof, error) {
	now := p.now().UTC()
	if err := evaluate(st, w, now); err != nil {
		p.logger.Info("zk claim not proven",
			zap.String("claim", string(st.Claim)),
			zap.String("citizen_id", w.CitizenID),
			zap.Error(err),
		)
		return nil, err
	}

	h := sha3.New256()
	fmt.Fprintf(h, "%s:%v:%s:%d", st.Claim, st.PublicInputs(), w.CitizenID, now.UnixNano())
	p.logger.Info("zk proof generated", zap.String("claim", string(st.Claim)))

	return &Proof{
		Claim:        st.Claim,
		Proof:        hex.EncodeToString(h.Sum(nil)),
		PublicInputs: st.PublicInputs(),
		Verified:     true,
		ProofType:    ProofTypeStub,
		GeneratedAt:  now,
	}, nil
}

// Verify checks that p is a well-formed stub proof of st.
func (p *StubProver) Verify(_ context.Context, proof *Proof, st Statement) (bool, error) {
	if _, err := ParseClaim(string(st.Claim)); err != nil {
		return false, err
	}
	if proof == nil || proof.ProofType != ProofTypeStub || !proof.Verified || proof.Claim != st.Claim {
		return false, nil
	}
	if _, err := hex.DecodeString(proof.Proof); err != nil || len(proof.Proof) != 64 {
		return false, nil
	}
	return slices.Equal(proof.PublicInputs, st.PublicInputs()), nil
}

func evaluate(st Statement, w Witness, now time.Time) error {
	switch st.Claim {
	case ClaimIsCitizen:
		if !w.Registered {
			return ErrClaimFalse
		}
	case ClaimAgeOver18:
		if w.DateOfBirth == nil {
			return ErrMissingWitness
		}
		if ageAt(*w.DateOfBirth, now) < 18 {
			return ErrClaimFalse
		}
	case ClaimIncomeAbove:
		if w.AnnualIncome == nil {
			return ErrMissingWitness
		}
		if *w.AnnualIncome <= st.Threshold {
			return ErrClaimFalse
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedClaim, st.Claim)
	}
	return nil
}

// ageAt returns completed years between dob and now.
func ageAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
