package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/identity"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
	"github.com/jmerrifield20/bharatchain/internal/vault"
	"go.uber.org/zap"
)

// EventIdentityCreated is written in IDENTITY block payloads.
const EventIdentityCreated = "IDENTITY_CREATED"

const dobLayout = "2006-01-02"

// citizenRepo is the persistence interface for the citizen service.
// *repository.CitizenRepository and *repository.MemoryCitizenRepository satisfy it.
type citizenRepo interface {
	Create(ctx context.Context, c *model.Citizen) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Citizen, error)
	GetByUIDHash(ctx context.Context, uidHash string) (*model.Citizen, error)
	SetBlockHash(ctx context.Context, id uuid.UUID, blockHash string) error
	UpdateBiometrics(ctx context.Context, c *model.Citizen) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RegisterRequest is the input to Register. UID is hashed immediately and
// never stored.
type RegisterRequest struct {
	UID       string
	FullName  string
	DOB       string // YYYY-MM-DD
	Gender    string
	Address   string
	IPAddress string
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	CitizenID string `json:"citizen_id"`
	DID       string `json:"did"`
	BlockHash string `json:"block_hash"`
}

// CitizenService manages citizen identities.
type CitizenService struct {
	repo    citizenRepo
	hasher  *identity.Hasher
	cipher  *vault.Cipher
	ledger  ledger.Ledger
	tokens  *identity.CitizenTokenIssuer // nil = token issuance disabled
	auditor Auditor                      // nil = no audit trail
	now     func() time.Time
	logger  *zap.Logger
}

// NewCitizenService creates a new CitizenService.
func NewCitizenService(repo citizenRepo, hasher *identity.Hasher, cipher *vault.Cipher, l ledger.Ledger, logger *zap.Logger) *CitizenService {
	return &CitizenService{
		repo:   repo,
		hasher: hasher,
		cipher: cipher,
		ledger: l,
		now:    time.Now,
		logger: logger,
	}
}

// SetTokenIssuer enables IssueToken.
func (s *CitizenService) SetTokenIssuer(t *identity.CitizenTokenIssuer) { s.tokens = t }

// SetAuditor configures the audit trail.
func (s *CitizenService) SetAuditor(a Auditor) { s.auditor = a }

// Register creates a citizen, anchors it in an IDENTITY block and returns its
// DID. A UID that is already registered yields repository.ErrDuplicateCitizen.
func (s *CitizenService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" || strings.TrimSpace(req.FullName) == "" {
		return nil, fmt.Errorf("%w: uid and full_name are required", ErrInvalidInput)
	}
	if _, err := time.Parse(dobLayout, req.DOB); err != nil {
		return nil, fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrInvalidInput)
	}

	uidHash := s.hasher.HashUID(req.UID)
	c := &model.Citizen{
		DID:     identity.DID(uidHash),
		UIDHash: uidHash,
	}
	var err error
	if c.FullNameEncrypted, err = s.cipher.Encrypt(req.FullName); err != nil {
		return nil, fmt.Errorf("encrypt name: %w", err)
	}
	if c.DOBEncrypted, err = s.cipher.Encrypt(req.DOB); err != nil {
		return nil, fmt.Errorf("encrypt dob: %w", err)
	}
	if c.GenderEncrypted, err = s.encryptOptional(req.Gender); err != nil {
		return nil, fmt.Errorf("encrypt gender: %w", err)
	}
	if c.AddressEncrypted, err = s.encryptOptional(req.Address); err != nil {
		return nil, fmt.Errorf("encrypt address: %w", err)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	b, err := s.ledger.WriteBlock(ctx, ledger.TypeIdentity, map[string]any{
		"event":      EventIdentityCreated,
		"citizen_id": c.ID.String(),
		"did":        c.DID,
		"uid_hash":   uidHash,
		"timestamp":  s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		if derr := s.repo.Delete(ctx, c.ID); derr != nil {
			s.logger.Error("orphaned citizen after failed identity anchor",
				zap.String("citizen_id", c.ID.String()), zap.Error(derr))
		}
		return nil, fmt.Errorf("anchor identity: %w", err)
	}
	if err := s.repo.SetBlockHash(ctx, c.ID, b.Hash); err != nil {
		if derr := s.repo.Delete(ctx, c.ID); derr != nil {
			s.logger.Error("orphaned citizen after failed block hash update",
				zap.String("citizen_id", c.ID.String()), zap.Error(derr))
		}
		s.logger.Warn("identity block anchored without a row",
			zap.String("citizen_id", c.ID.String()), zap.String("block_hash", b.Hash))
		return nil, fmt.Errorf("store identity block hash: %w", err)
	}

	s.logger.Info("citizen registered",
		zap.String("citizen_id", c.ID.String()),
		zap.String("did", c.DID),
		zap.Uint64("block", b.Sequence),
	)
	recordAudit(ctx, s.auditor, s.logger, &audit.Entry{
		CitizenID: c.ID.String(),
		ActorID:   "SELF",
		ActorName: req.FullName,
		Action:    audit.ActionWrite,
		Module:    string(consent.ModuleIdentity),
		Details:   "Citizen registered",
		IPAddress: req.IPAddress,
		BlockHash: b.Hash,
	})

	return &RegisterResult{CitizenID: c.ID.String(), DID: c.DID, BlockHash: b.Hash}, nil
}

func (s *CitizenService) encryptOptional(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.cipher.Encrypt(v)
}

// Get returns the citizen with the given ID.
func (s *CitizenService) Get(ctx context.Context, citizenID string) (*model.Citizen, error) {
	id, err := parseCitizenID(citizenID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// DIDDocument returns the W3C DID document of a citizen.
func (s *CitizenService) DIDDocument(ctx context.Context, citizenID string) (*identity.DIDDocument, error) {
	c, err := s.Get(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	return identity.NewDIDDocument(c.DID, c.BlockHash), nil
}

// EnrollBiometrics hashes and stores the given samples, replacing any earlier
// template of the same kind. Raw samples are discarded.
func (s *CitizenService) EnrollBiometrics(ctx context.Context, citizenID string, samples map[model.BiometricKind][]byte, ip string) ([]model.BiometricKind, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: at least one biometric sample is required", ErrInvalidInput)
	}
	c, err := s.Get(ctx, citizenID)
	if err != nil {
		return nil, err
	}

	var enrolled []model.BiometricKind
	for _, kind := range model.BiometricKinds {
		sample, ok := samples[kind]
		if !ok {
			continue
		}
		hash, err := s.hasher.HashBiometric(sample, c.UIDHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, kind, err)
		}
		c.SetBiometricHash(kind, hash)
		enrolled = append(enrolled, kind)
	}
	if len(enrolled) != len(samples) {
		return nil, fmt.Errorf("%w: unknown biometric kind", ErrInvalidInput)
	}
	if err := s.repo.UpdateBiometrics(ctx, c); err != nil {
		return nil, fmt.Errorf("store biometrics: %w", err)
	}

	recordAudit(ctx, s.auditor, s.logger, &audit.Entry{
		CitizenID: c.ID.String(),
		ActorID:   "SELF",
		Action:    audit.ActionWrite,
		Module:    string(consent.ModuleIdentity),
		Details:   fmt.Sprintf("Enrolled %d biometric(s)", len(enrolled)),
		IPAddress: ip,
	})
	return enrolled, nil
}

// VerifyBiometric compares a live sample with the stored template of kind.
// Every attempt is audited as VERIFY.
func (s *CitizenService) VerifyBiometric(ctx context.Context, citizenID string, kind model.BiometricKind, sample []byte, verifierID, ip string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: unknown biometric kind %q", ErrInvalidInput, kind)
	}
	c, err := s.Get(ctx, citizenID)
	if err != nil {
		return false, err
	}
	match := s.hasher.VerifyBiometric(sample, c.UIDHash, c.BiometricHash(kind))

	outcome := "no match"
	if match {
		outcome = "match"
	}
	if verifierID == "" {
		verifierID = "SELF"
	}
	recordAudit(ctx, s.auditor, s.logger, &audit.Entry{
		CitizenID: c.ID.String(),
		ActorID:   verifierID,
		Action:    audit.ActionVerify,
		Module:    string(consent.ModuleIdentity),
		Details:   fmt.Sprintf("Biometric %s verification: %s", kind, outcome),
		IPAddress: ip,
	})
	return match, nil
}

// VerifyCitizenProof implements consent.ProofVerifier: proof is the raw UID,
// and its hash must equal the citizen's stored UID hash.
func (s *CitizenService) VerifyCitizenProof(ctx context.Context, citizenID, proof string) error {
	_, err := s.proven(ctx, citizenID, proof)
	return err
}

func (s *CitizenService) proven(ctx context.Context, citizenID, proof string) (*model.Citizen, error) {
	c, err := s.Get(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	if s.hasher.HashUID(strings.TrimSpace(proof)) != c.UIDHash {
		return nil, consent.ErrCitizenProofMismatch
	}
	return c, nil
}

// IssueToken exchanges a citizen proof for a session token.
func (s *CitizenService) IssueToken(ctx context.Context, citizenID, proof string) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, errors.New("token issuance not configured")
	}
	c, err := s.proven(ctx, citizenID, proof)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Issue(c.ID.String(), c.DID)
}

// DateOfBirth decrypts a citizen's date of birth.
func (s *CitizenService) DateOfBirth(ctx context.Context, citizenID string) (time.Time, error) {
	c, err := s.Get(ctx, citizenID)
	if err != nil {
		return time.Time{}, err
	}
	raw, err := s.cipher.Decrypt(c.DOBEncrypted)
	if err != nil {
		return time.Time{}, fmt.Errorf("decrypt dob: %w", err)
	}
	return time.Parse(dobLayout, raw)
}
