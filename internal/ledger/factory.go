package ledger

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendSimulation = "simulation"
	BackendPostgres   = "postgres"
	BackendEthereum   = "ethereum"
	BackendFabric     = "fabric"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string
	Ethereum EthereumConfig
	Fabric   FabricConfig
}

// New builds the backend named by cfg.Backend. An empty name selects the
// simulation backend; an unknown name is an error. pool is required only for
// the postgres backend.
func New(cfg Config, pool *pgxpool.Pool, logger *zap.Logger) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSimulation:
		logger.Info("using simulated chain backend (development mode)")
		return NewSimulatedChain(logger), nil
	case BackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("chain backend %q requires database.url", BackendPostgres)
		}
		logger.Info("using postgres chain backend")
		return NewPostgresChain(pool, logger), nil
	case BackendEthereum:
		if cfg.Ethereum.RPCURL == "" || cfg.Ethereum.PrivateKey == "" {
			return nil, fmt.Errorf("chain backend %q requires an RPC URL and a private key", BackendEthereum)
		}
		logger.Info("using ethereum chain backend", zap.String("rpc_url", cfg.Ethereum.RPCURL))
		return NewEthereumChain(cfg.Ethereum, logger), nil
	case BackendFabric:
		if cfg.Fabric.PeerEndpoint == "" || cfg.Fabric.Channel == "" || cfg.Fabric.Chaincode == "" {
			return nil, fmt.Errorf("chain backend %q requires a peer endpoint, channel and chaincode", BackendFabric)
		}
		logger.Info("using hyperledger fabric chain backend", zap.String("peer", cfg.Fabric.PeerEndpoint))
		return NewFabricChain(cfg.Fabric, logger), nil
	default:
		return nil, fmt.Errorf("unknown chain backend %q", cfg.Backend)
	}
}
