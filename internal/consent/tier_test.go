package consent_test

import (
	"testing"

	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		requester string
		want      consent.Tier
	}{
		{"UIDAI", consent.TierGovernment},
		{"uidai", consent.TierGovernment},
		{"Income_Tax_Dept", consent.TierGovernment},
		{"ED", consent.TierGovernment},
		{"SUBREGISTRAR_OFFICE", consent.TierGovernment},
		{"UIDAI_REGIONAL", consent.TierCommercial}, // government match is exact
		{"EDTECH_APP", consent.TierCommercial},
		{"HDFC_BANK", consent.TierRegulated},
		{"hdfc_bank", consent.TierRegulated},
		{"Apollo_Hospital", consent.TierRegulated},
		{"LIC_INSURANCE", consent.TierRegulated},
		{"BAJAJ_NBFC", consent.TierRegulated},
		{"city-clinic-42", consent.TierRegulated},
		{"BANKBAZAAR", consent.TierRegulated},
		{"PAYTM", consent.TierCommercial},
		{"", consent.TierCommercial},
		{"   ", consent.TierCommercial},
		{"\x00\xff", consent.TierCommercial},
	}
	for _, tt := range tests {
		t.Run(tt.requester, func(t *testing.T) {
			assert.Equal(t, tt.want, consent.Classify(tt.requester))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for _, id := range append(consent.GovernmentEntities(), "HDFC_BANK", "ZOMATO") {
		first := consent.Classify(id)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, consent.Classify(id), id)
		}
	}
}

func TestGovernmentEntities(t *testing.T) {
	ids := consent.GovernmentEntities()
	assert.Len(t, ids, 13)
	for _, id := range ids {
		assert.Equal(t, consent.TierGovernment, consent.Classify(id), id)
	}
}
