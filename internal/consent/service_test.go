package consent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/ledger/ledgermock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type fixture struct {
	svc    *consent.Service
	store  *consent.MemoryStore
	chain  *ledger.SimulatedChain
	audits *audit.MemoryStore
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  consent.NewMemoryStore(),
		chain:  ledger.NewSimulatedChain(zap.NewNop()),
		audits: audit.NewMemoryStore(),
		clock:  fixedNow,
	}
	require.NoError(t, f.chain.Connect(context.Background()))
	f.svc = consent.NewService(f.store, f.chain, consent.NewEngine(zap.NewNop()), consent.Config{}, zap.NewNop())
	f.svc.SetClock(func() time.Time { return f.clock })
	f.svc.SetAuditor(audit.NewRecorder(f.audits, zap.NewNop()))
	return f
}

func grantReq(requester string, modules ...string) consent.GrantRequest {
	return consent.GrantRequest{
		CitizenID:     "c1",
		RequesterID:   requester,
		RequesterName: requester + " Ltd",
		Modules:       modules,
		DurationDays:  30,
	}
}

func TestService_GrantAnchorsConsentBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial", "assets"))
	require.NoError(t, err)

	b, err := f.chain.GetBlock(ctx, res.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeConsent, b.Type)
	assert.Equal(t, consent.EventGranted, b.Payload["event"])
	assert.Equal(t, "c1", b.Payload["citizen_id"])
	assert.Equal(t, "HDFC_BANK", b.Payload["requester_id"])
	assert.Equal(t, []any{"financial", "assets"}, b.Payload["modules"])

	grants, err := f.svc.ListActive(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	g := grants[0]
	assert.Equal(t, res.GrantID, g.ID)
	assert.Equal(t, consent.TierRegulated, g.RequesterTier)
	assert.Equal(t, res.BlockHash, g.BlockHash)
	assert.Equal(t, "HDFC_BANK Ltd", g.RequesterName)
	require.NotNil(t, g.ExpiresAt)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), *g.ExpiresAt)

	entries, _ := f.audits.ListByCitizen(ctx, "c1", 10)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionConsentGranted, entries[0].Action)
	assert.Equal(t, res.BlockHash, entries[0].BlockHash)
}

func TestService_GrantSnapshotsTier(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Grant(context.Background(), grantReq("UIDAI", "identity"))
	require.NoError(t, err)

	grants, _ := f.svc.ListActive(context.Background(), "c1")
	require.Len(t, grants, 1)
	assert.Equal(t, res.GrantID, grants[0].ID)
	assert.Equal(t, consent.TierGovernment, grants[0].RequesterTier)
}

func TestService_GrantDurationClamped(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, 30},
		{-5, 30},
		{7, 7},
		{365, 365},
		{1000, 365},
	}
	for _, tt := range tests {
		f := newFixture(t)
		req := grantReq("HDFC_BANK", "financial")
		req.DurationDays = tt.requested

		res, err := f.svc.Grant(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.DurationDays, "requested %d", tt.requested)
		assert.Equal(t, fixedNow.Add(time.Duration(tt.want)*24*time.Hour), *res.ExpiresAt)
	}
}

func TestService_GrantCustomMaxDuration(t *testing.T) {
	svc := consent.NewService(consent.NewMemoryStore(), newConnectedChain(t), consent.NewEngine(zap.NewNop()),
		consent.Config{MaxDurationDays: 90}, zap.NewNop())

	req := grantReq("HDFC_BANK", "financial")
	req.DurationDays = 120
	res, err := svc.Grant(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 90, res.DurationDays)
}

func TestService_RegrantSupersedesPreviousGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.NoError(t, err)
	_, err = f.svc.Grant(ctx, grantReq("APOLLO_HOSPITAL", "health"))
	require.NoError(t, err)
	second, err := f.svc.Grant(ctx, grantReq("HDFC_BANK", "assets"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Superseded)

	active, err := f.svc.ListActive(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, g := range active {
		if g.RequesterID == "HDFC_BANK" {
			assert.Equal(t, second.GrantID, g.ID)
			assert.Equal(t, []consent.Module{consent.ModuleAssets}, g.Modules)
		}
	}

	// History is kept: the superseded grant is inactive, not deleted.
	history, _ := f.store.History(ctx, "c1")
	require.Len(t, history, 3)
	assert.Equal(t, first.GrantID, history[0].ID)
	assert.False(t, history[0].Active)

	_, err = f.svc.Authorize(ctx, "c1", "HDFC_BANK", consent.ModuleFinancial)
	assert.ErrorIs(t, err, consent.ErrPermissionDenied, "the replaced grant must no longer authorize")
}

func TestService_GrantRejectsInvalidModulesBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.NoError(t, err)
	blocks := f.chain.Len()

	_, err = f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial", "genome"))
	require.ErrorIs(t, err, consent.ErrInvalidModuleSet)

	_, err = f.svc.Grant(ctx, grantReq("HDFC_BANK"))
	require.ErrorIs(t, err, consent.ErrInvalidModuleSet)

	assert.Equal(t, blocks, f.chain.Len(), "no block for a rejected grant")
	active, _ := f.svc.ListActive(ctx, "c1")
	require.Len(t, active, 1, "the existing grant must survive a rejected request")
	assert.True(t, active[0].Active)
}

func TestService_GrantRequiresRequester(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Grant(context.Background(), grantReq("", "health"))
	assert.ErrorIs(t, err, consent.ErrInvalidRequest)
}

func TestService_LedgerFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := consent.NewMemoryStore()
	ctrl := gomock.NewController(t)
	ml := ledgermock.NewMockLedger(ctrl)

	gomock.InOrder(
		ml.EXPECT().WriteBlock(gomock.Any(), ledger.TypeConsent, gomock.Any()).
			Return(&ledger.Block{Sequence: 1, Type: ledger.TypeConsent, Hash: "h1"}, nil),
		ml.EXPECT().WriteBlock(gomock.Any(), ledger.TypeConsent, gomock.Any()).
			Return(nil, ledger.ErrUnavailable),
		ml.EXPECT().WriteBlock(gomock.Any(), ledger.TypeConsent, gomock.Any()).
			Return(nil, ledger.ErrWriteFailed),
	)

	var outcomes []bool
	svc := consent.NewService(store, ml, consent.NewEngine(zap.NewNop()), consent.Config{}, zap.NewNop())
	svc.SetMetricsRecord(func(_ string, ok bool) { outcomes = append(outcomes, ok) })

	first, err := svc.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.NoError(t, err)

	_, err = svc.Grant(ctx, grantReq("HDFC_BANK", "assets"))
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	active, _ := store.ListActive(ctx, "c1")
	require.Len(t, active, 1)
	assert.Equal(t, first.GrantID, active[0].ID, "the prior grant must stay active")
	assert.Equal(t, "h1", active[0].BlockHash)

	_, err = svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	require.ErrorIs(t, err, ledger.ErrWriteFailed)
	active, _ = store.ListActive(ctx, "c1")
	assert.Len(t, active, 1, "a failed revoke leaves the grant active")

	history, _ := store.History(ctx, "c1")
	assert.Len(t, history, 1, "no half-written grant is left behind")
	assert.Equal(t, []bool{true, false, false}, outcomes)
}

func TestService_Revoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.NoError(t, err)

	res, err := f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)

	b, err := f.chain.GetBlock(ctx, res.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, consent.EventRevoked, b.Payload["event"])
	assert.Equal(t, []any{}, b.Payload["modules"])

	active, _ := f.svc.ListActive(ctx, "c1")
	assert.Empty(t, active)

	entries, _ := f.audits.ListByCitizen(ctx, "c1", 10)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionConsentRevoked, entries[0].Action)
}

func TestService_RevokeWithoutActiveGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.chain.Len()

	_, err := f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	require.ErrorIs(t, err, consent.ErrNoActiveConsent)

	_, err = f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	require.ErrorIs(t, err, consent.ErrNoActiveConsent)

	assert.Equal(t, before+2, f.chain.Len(), "only the grant and the first revoke are anchored")
}

func TestService_ListActiveKeepsExpiredGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := grantReq("HDFC_BANK", "financial")
	req.DurationDays = 1
	_, err := f.svc.Grant(ctx, req)
	require.NoError(t, err)

	f.clock = fixedNow.Add(48 * time.Hour)

	active, err := f.svc.ListActive(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, active, 1, "expired grants remain listed until superseded or revoked")
	assert.True(t, active[0].Active)
	assert.False(t, active[0].ValidAt(f.clock))

	_, err = f.svc.Authorize(ctx, "c1", "HDFC_BANK", consent.ModuleFinancial)
	assert.ErrorIs(t, err, consent.ErrPermissionDenied)

	// An expired grant can still be revoked.
	_, err = f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	assert.NoError(t, err)
}

type stubProofs struct {
	want string
}

func (s stubProofs) VerifyCitizenProof(_ context.Context, _, proof string) error {
	if proof != s.want {
		return consent.ErrCitizenProofMismatch
	}
	return nil
}

func TestService_CitizenProof(t *testing.T) {
	f := newFixture(t)
	f.svc.SetProofVerifier(stubProofs{want: "123412341234"})
	ctx := context.Background()

	req := grantReq("HDFC_BANK", "financial")
	req.CitizenProof = "999999999999"
	_, err := f.svc.Grant(ctx, req)
	require.ErrorIs(t, err, consent.ErrCitizenProofMismatch)
	assert.Equal(t, 1, f.chain.Len())

	req.CitizenProof = "123412341234"
	_, err = f.svc.Grant(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", CitizenProof: "bad", RequesterID: "HDFC_BANK"})
	require.ErrorIs(t, err, consent.ErrCitizenProofMismatch)
	active, _ := f.svc.ListActive(ctx, "c1")
	assert.Len(t, active, 1)
}

func TestService_AuthorizeUsesAndInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	cache := consent.NewMemoryCache(time.Minute)
	f.svc.SetCache(cache)
	ctx := context.Background()

	var decisions []consent.Decision
	f.svc.SetDecisionRecord(func(d consent.Decision) { decisions = append(decisions, d) })

	_, err := f.svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
	require.ErrorIs(t, err, consent.ErrPermissionDenied)
	assert.Equal(t, 1, cache.Len(), "the empty grant list is cached")

	_, err = f.svc.Grant(ctx, grantReq("APOLLO_HOSPITAL", "health"))
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len(), "a grant invalidates the citizen's entry")

	d, err := f.svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Len(t, decisions, 2)

	_, err = f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "APOLLO_HOSPITAL"})
	require.NoError(t, err)
	_, err = f.svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
	assert.ErrorIs(t, err, consent.ErrPermissionDenied)
}

func TestService_AuthorizeTiersWithoutStoreLookup(t *testing.T) {
	ctx := context.Background()
	svc := consent.NewService(failingStore{}, newConnectedChain(t), consent.NewEngine(zap.NewNop()), consent.Config{}, zap.NewNop())

	d, err := svc.Authorize(ctx, "c1", "SUPREME_COURT", consent.ModuleProperty)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	_, err = svc.Authorize(ctx, "c1", "ZOMATO", consent.ModuleHealth)
	assert.ErrorIs(t, err, consent.ErrPermissionDenied)

	_, err = svc.Authorize(ctx, "c1", "HDFC_BANK", consent.ModuleFinancial)
	require.Error(t, err)
	assert.False(t, errors.Is(err, consent.ErrPermissionDenied), "a store failure is not a denial")
}

func TestService_ConcurrentGrantsLeaveOneActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Grant(ctx, grantReq("HDFC_BANK", "financial"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, _ := f.svc.ListActive(ctx, "c1")
	assert.Len(t, active, 1)
	history, _ := f.store.History(ctx, "c1")
	assert.Len(t, history, n)
	assert.NoError(t, f.chain.Verify(ctx))
}

// The full consent flow a hospital sees: grant, write, revoke, denied.
func TestService_GrantWriteRevokeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, grantReq("APOLLO_HOSPITAL", "health"))
	require.NoError(t, err)

	_, err = f.svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
	require.NoError(t, err)
	_, err = f.chain.WriteBlock(ctx, ledger.TypeHealthRecord, map[string]any{
		"event": "HEALTH_RECORD_CREATED", "citizen_id": "c1",
	})
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "APOLLO_HOSPITAL"})
	require.NoError(t, err)

	_, err = f.svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
	require.ErrorIs(t, err, consent.ErrPermissionDenied)

	blocks, err := f.chain.GetAllBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.Equal(t, []string{ledger.TypeGenesis, ledger.TypeConsent, ledger.TypeHealthRecord, ledger.TypeConsent},
		[]string{blocks[0].Type, blocks[1].Type, blocks[2].Type, blocks[3].Type})
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].Hash, blocks[i].PrevHash)
	}
	assert.NoError(t, ledger.Verify(blocks))
}

// A check that misses the cache and reads the store just before a revoke
// commits must not leave the revoked grant cached afterwards.
func TestService_RevokeDuringCacheFillIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Grant(ctx, grantReq("APOLLO_HOSPITAL", "health"))
	require.NoError(t, err)

	paused := &pausingStore{
		MemoryStore: f.store,
		read:        make(chan struct{}),
		resume:      make(chan struct{}),
	}
	svc := consent.NewService(paused, f.chain, consent.NewEngine(zap.NewNop()), consent.Config{}, zap.NewNop())
	svc.SetClock(func() time.Time { return f.clock })
	svc.SetCache(consent.NewMemoryCache(time.Hour))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
		done <- err
	}()

	<-paused.read
	_, err = svc.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "APOLLO_HOSPITAL"})
	require.NoError(t, err)
	close(paused.resume)
	require.NoError(t, <-done, "the in-flight check saw the grant before the revoke committed")

	_, err = svc.Authorize(ctx, "c1", "APOLLO_HOSPITAL", consent.ModuleHealth)
	assert.ErrorIs(t, err, consent.ErrPermissionDenied)
}

// The transaction bound covers the ledger write, so a slow ledger succeeds
// as long as TxTimeout exceeds it.
func TestService_TxTimeoutCoversLedgerWrite(t *testing.T) {
	ctx := context.Background()
	slow := &slowLedger{Ledger: newConnectedChain(t), delay: 50 * time.Millisecond}

	short := consent.NewService(consent.NewMemoryStore(), slow, consent.NewEngine(zap.NewNop()),
		consent.Config{TxTimeout: 10 * time.Millisecond}, zap.NewNop())
	_, err := short.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	store := consent.NewMemoryStore()
	long := consent.NewService(store, slow, consent.NewEngine(zap.NewNop()),
		consent.Config{TxTimeout: time.Second}, zap.NewNop())
	res, err := long.Grant(ctx, grantReq("HDFC_BANK", "financial"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.BlockHash)

	_, err = long.Revoke(ctx, consent.RevokeRequest{CitizenID: "c1", RequesterID: "HDFC_BANK"})
	require.NoError(t, err)
	active, _ := store.ListActive(ctx, "c1")
	assert.Empty(t, active)
}

// pausingStore signals read after ListActive has loaded its result and blocks
// the caller until resume is closed. Only the first call pauses.
type pausingStore struct {
	*consent.MemoryStore
	read   chan struct{}
	resume chan struct{}
	once   sync.Once
}

func (s *pausingStore) ListActive(ctx context.Context, citizenID string) ([]*consent.Grant, error) {
	gs, err := s.MemoryStore.ListActive(ctx, citizenID)
	s.once.Do(func() {
		close(s.read)
		<-s.resume
	})
	return gs, err
}

// slowLedger delays every write and honours context cancellation.
type slowLedger struct {
	ledger.Ledger
	delay time.Duration
}

func (l *slowLedger) WriteBlock(ctx context.Context, blockType string, payload map[string]any) (*ledger.Block, error) {
	select {
	case <-time.After(l.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return l.Ledger.WriteBlock(ctx, blockType, payload)
}

type failingStore struct{}

func (failingStore) RunInTx(context.Context, func(context.Context, consent.Tx) error) error {
	return errors.New("database is down")
}

func (failingStore) ListActive(context.Context, string) ([]*consent.Grant, error) {
	return nil, errors.New("database is down")
}

func newConnectedChain(t *testing.T) *ledger.SimulatedChain {
	t.Helper()
	c := ledger.NewSimulatedChain(zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	return c
}
