package main

import (
	"testing"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestConsentTxTimeout(t *testing.T) {
	t.Cleanup(viper.Reset)

	tests := []struct {
		name     string
		override string
		cfg      ledger.Config
		want     time.Duration
	}{
		{
			name: "simulation uses the package default",
			cfg:  ledger.Config{Backend: ledger.BackendSimulation},
			want: consent.DefaultTxTimeout,
		},
		{
			name: "ethereum exceeds the receipt timeout",
			cfg:  ledger.Config{Backend: ledger.BackendEthereum, Ethereum: ledger.EthereumConfig{ReceiptTimeout: 90 * time.Second}},
			want: 90*time.Second + txTimeoutMargin,
		},
		{
			name: "ethereum without a receipt timeout uses the ledger default",
			cfg:  ledger.Config{Backend: ledger.BackendEthereum},
			want: 30*time.Second + txTimeoutMargin,
		},
		{
			name: "fabric exceeds the submit timeout",
			cfg:  ledger.Config{Backend: ledger.BackendFabric, Fabric: ledger.FabricConfig{SubmitTimeout: time.Minute}},
			want: time.Minute + txTimeoutMargin,
		},
		{
			name:     "explicit override wins",
			override: "2m",
			cfg:      ledger.Config{Backend: ledger.BackendEthereum, Ethereum: ledger.EthereumConfig{ReceiptTimeout: 90 * time.Second}},
			want:     2 * time.Minute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			if tt.override != "" {
				viper.Set("consent.tx_timeout", tt.override)
			}
			assert.Equal(t, tt.want, consentTxTimeout(tt.cfg))
		})
	}
}

func TestConsentTxTimeout_ExceedsLedgerDefaults(t *testing.T) {
	assert.Greater(t, consent.DefaultTxTimeout, 30*time.Second)
}
