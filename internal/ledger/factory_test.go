package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_SelectsBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ledger.Config
		want    any
		wantErr bool
	}{
		{name: "empty defaults to simulation", cfg: ledger.Config{}, want: &ledger.SimulatedChain{}},
		{name: "simulation", cfg: ledger.Config{Backend: "Simulation "}, want: &ledger.SimulatedChain{}},
		{name: "postgres without pool", cfg: ledger.Config{Backend: ledger.BackendPostgres}, wantErr: true},
		{
			name: "ethereum",
			cfg: ledger.Config{Backend: ledger.BackendEthereum, Ethereum: ledger.EthereumConfig{
				RPCURL: "http://127.0.0.1:8545", PrivateKey: "0xabc",
			}},
			want: &ledger.EthereumChain{},
		},
		{name: "ethereum without key", cfg: ledger.Config{Backend: ledger.BackendEthereum}, wantErr: true},
		{
			name: "fabric",
			cfg: ledger.Config{Backend: ledger.BackendFabric, Fabric: ledger.FabricConfig{
				PeerEndpoint: "localhost:7051", Channel: "mychannel", Chaincode: "anchor",
			}},
			want: &ledger.FabricChain{},
		},
		{name: "fabric without channel", cfg: ledger.Config{Backend: ledger.BackendFabric}, wantErr: true},
		{name: "unknown", cfg: ledger.Config{Backend: "bitcoin"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.New(tt.cfg, nil, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestInstrument_ObservesWrites(t *testing.T) {
	var (
		types []string
		errs  []error
	)
	chain := ledger.NewSimulatedChain(zap.NewNop())
	l := ledger.Instrument(chain, func(blockType string, _ time.Duration, err error) {
		types = append(types, blockType)
		errs = append(errs, err)
	})

	// Not connected yet: the failure is still observed.
	_, err := l.WriteBlock(context.Background(), ledger.TypeIdentity, nil)
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	require.NoError(t, l.Connect(context.Background()))
	b, err := l.WriteBlock(context.Background(), ledger.TypeConsent, map[string]any{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, []string{ledger.TypeIdentity, ledger.TypeConsent}, types)
	assert.True(t, errors.Is(errs[0], ledger.ErrUnavailable))
	assert.NoError(t, errs[1])

	got, err := l.GetBlock(context.Background(), b.Hash)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, got.Hash)

	// The wrapper keeps the inner backend's verifier reachable.
	assert.NoError(t, ledger.VerifyChain(context.Background(), l))
}
