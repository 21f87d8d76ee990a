package consent_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine() *consent.Engine {
	e := consent.NewEngine(zap.NewNop())
	e.SetClock(func() time.Time { return fixedNow })
	return e
}

func grantFor(requester string, expires *time.Time, modules ...consent.Module) *consent.Grant {
	return &consent.Grant{
		ID:          uuid.New(),
		CitizenID:   "c1",
		RequesterID: requester,
		Modules:     modules,
		Active:      true,
		GrantedAt:   fixedNow.Add(-time.Hour),
		ExpiresAt:   expires,
	}
}

func at(d time.Duration) *time.Time {
	t := fixedNow.Add(d)
	return &t
}

func TestEngine_GovernmentAlwaysAllowed(t *testing.T) {
	e := newEngine()
	for _, m := range consent.Modules {
		d := e.Evaluate("c1", "UIDAI", m, nil)
		assert.True(t, d.Allowed, m)
		assert.Equal(t, consent.TierGovernment, d.Tier)
		assert.Equal(t, consent.ReasonGovernment, d.Reason)
	}
}

func TestEngine_CommercialAlwaysDenied(t *testing.T) {
	e := newEngine()
	// Even a well-formed grant does not open raw access for a commercial requester.
	grants := []*consent.Grant{grantFor("ZOMATO", nil, consent.Modules...)}
	for _, m := range consent.Modules {
		d := e.Evaluate("c1", "ZOMATO", m, grants)
		assert.False(t, d.Allowed, m)
		assert.Equal(t, consent.TierCommercial, d.Tier)
		assert.Equal(t, consent.ReasonCommercial, d.Reason)
	}
}

func TestEngine_RegulatedNeedsMatchingGrant(t *testing.T) {
	inactive := grantFor("HDFC_BANK", nil, consent.ModuleFinancial)
	inactive.Active = false

	tests := []struct {
		name   string
		grants []*consent.Grant
		module consent.Module
		want   bool
	}{
		{"no grants", nil, consent.ModuleFinancial, false},
		{"matching grant", []*consent.Grant{grantFor("HDFC_BANK", at(time.Hour), consent.ModuleFinancial)}, consent.ModuleFinancial, true},
		{"never expires", []*consent.Grant{grantFor("HDFC_BANK", nil, consent.ModuleFinancial)}, consent.ModuleFinancial, true},
		{"other module", []*consent.Grant{grantFor("HDFC_BANK", nil, consent.ModuleHealth)}, consent.ModuleFinancial, false},
		{"other requester", []*consent.Grant{grantFor("ICICI_BANK", nil, consent.ModuleFinancial)}, consent.ModuleFinancial, false},
		{"requester id is case sensitive", []*consent.Grant{grantFor("hdfc_bank", nil, consent.ModuleFinancial)}, consent.ModuleFinancial, false},
		{"inactive", []*consent.Grant{inactive}, consent.ModuleFinancial, false},
		{"expires in one second", []*consent.Grant{grantFor("HDFC_BANK", at(time.Second), consent.ModuleFinancial)}, consent.ModuleFinancial, true},
		{"expired one second ago", []*consent.Grant{grantFor("HDFC_BANK", at(-time.Second), consent.ModuleFinancial)}, consent.ModuleFinancial, false},
		{"expires exactly now", []*consent.Grant{grantFor("HDFC_BANK", at(0), consent.ModuleFinancial)}, consent.ModuleFinancial, false},
		{
			"one valid among several",
			[]*consent.Grant{
				grantFor("HDFC_BANK", at(-time.Minute), consent.ModuleFinancial),
				grantFor("HDFC_BANK", at(time.Minute), consent.ModuleHealth, consent.ModuleFinancial),
			},
			consent.ModuleFinancial, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newEngine().Evaluate("c1", "HDFC_BANK", tt.module, tt.grants)
			assert.Equal(t, tt.want, d.Allowed)
			assert.Equal(t, consent.TierRegulated, d.Tier)
			if tt.want {
				assert.NotEqual(t, uuid.Nil, d.GrantID)
			} else {
				assert.Equal(t, consent.ReasonNoGrant, d.Reason)
			}
		})
	}
}

func TestEngine_DecideMatchesEvaluate(t *testing.T) {
	e := newEngine()
	grants := []*consent.Grant{grantFor("APOLLO_HOSPITAL", nil, consent.ModuleHealth)}
	assert.True(t, e.Decide("c1", "APOLLO_HOSPITAL", consent.ModuleHealth, grants))
	assert.False(t, e.Decide("c1", "APOLLO_HOSPITAL", consent.ModuleAssets, grants))
}

func TestEngine_Enforce(t *testing.T) {
	e := newEngine()

	require.NoError(t, e.Enforce("c1", "CBI", consent.ModuleAssets, nil))

	err := e.Enforce("c1", "APOLLO_HOSPITAL", consent.ModuleHealth, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, consent.ErrPermissionDenied))

	var denied *consent.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "c1", denied.Decision.CitizenID)
	assert.Equal(t, "APOLLO_HOSPITAL", denied.Decision.RequesterID)
	assert.Equal(t, consent.ModuleHealth, denied.Decision.Module)
	assert.Equal(t, consent.TierRegulated, denied.Decision.Tier)
	assert.Contains(t, err.Error(), "health")
}

func TestEngine_UsesClock(t *testing.T) {
	e := newEngine()
	grants := []*consent.Grant{grantFor("HDFC_BANK", at(time.Hour), consent.ModuleFinancial)}
	require.True(t, e.Decide("c1", "HDFC_BANK", consent.ModuleFinancial, grants))

	e.SetClock(func() time.Time { return fixedNow.Add(2 * time.Hour) })
	assert.False(t, e.Decide("c1", "HDFC_BANK", consent.ModuleFinancial, grants))
}
