package ledger

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
)

// FabricConfig configures FabricChain.
type FabricConfig struct {
	PeerEndpoint  string // host:port of the gateway peer
	GatewayPeer   string // TLS server name override
	MSPID         string
	CertPath      string // PEM client certificate
	KeyPath       string // PEM client private key
	TLSCertPath   string // PEM CA certificate of the peer's TLS chain
	Channel       string
	Chaincode     string
	SubmitTimeout time.Duration
}

// chaincodeFunction is the chaincode transaction invoked for every block.
const chaincodeFunction = "WriteBlock"

var errCommitRejected = errors.New("transaction rejected at commit")

// fabricReceipt is what a committed invocation yields.
type fabricReceipt struct {
	TxID        string
	BlockNumber uint64
}

// chaincodeSubmitter is the subset of the Fabric Gateway used by FabricChain.
type chaincodeSubmitter interface {
	Submit(ctx context.Context, fn string, args ...string) (*fabricReceipt, error)
	Close() error
}

// FabricChain anchors each block through a chaincode invocation on a
// Hyperledger Fabric channel. The block hash is the Fabric transaction ID.
//
// Point lookups and enumeration need chaincode queries outside the minimal
// contract, so GetBlock always reports ErrNotFound and GetAllBlocks is empty.
type FabricChain struct {
	cfg     FabricConfig
	connect func(ctx context.Context, cfg FabricConfig) (chaincodeSubmitter, error)
	now     func() time.Time
	logger  *zap.Logger

	// mu serialises submissions so PrevHash bookkeeping follows commit order.
	mu       sync.Mutex
	cc       chaincodeSubmitter
	lastHash string
}

// NewFabricChain creates a FabricChain. The gateway is dialled on Connect.
func NewFabricChain(cfg FabricConfig, logger *zap.Logger) *FabricChain {
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	return &FabricChain{
		cfg:      cfg,
		connect:  dialGateway,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		lastHash: GenesisHash,
	}
}

// Connect implements Ledger.
func (c *FabricChain) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cc != nil {
		return nil
	}
	cc, err := c.connect(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.cc = cc
	c.logger.Info("fabric gateway connected",
		zap.String("peer", c.cfg.PeerEndpoint),
		zap.String("channel", c.cfg.Channel),
		zap.String("chaincode", c.cfg.Chaincode),
		zap.String("msp_id", c.cfg.MSPID),
	)
	return nil
}

// Disconnect implements Ledger.
func (c *FabricChain) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cc == nil {
		return nil
	}
	err := c.cc.Close()
	c.cc = nil
	return err
}

// Ping implements Ledger.
func (c *FabricChain) Ping(_ context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cc == nil {
		return "disconnected"
	}
	return fmt.Sprintf("ok: fabric channel %s, chaincode %s", c.cfg.Channel, c.cfg.Chaincode)
}

// WriteBlock implements Ledger. It returns once the transaction is committed.
func (c *FabricChain) WriteBlock(ctx context.Context, blockType string, payload map[string]any) (*Block, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}
	raw, err := canonicalJSON(normalized)
	if err != nil {
		return nil, err
	}
	digest := sha3Hex(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cc == nil {
		return nil, fmt.Errorf("%w: fabric chain is not connected", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	receipt, err := c.cc.Submit(ctx, chaincodeFunction, blockType, string(raw), digest, c.lastHash)
	if err != nil {
		return nil, classifyFabricError(err)
	}

	b := &Block{
		Sequence:  receipt.BlockNumber,
		Type:      blockType,
		Payload:   normalized,
		PrevHash:  c.lastHash,
		Hash:      receipt.TxID,
		Timestamp: c.now(),
	}
	c.lastHash = b.Hash

	c.logger.Info("block anchored on fabric",
		zap.String("type", blockType),
		zap.String("tx_id", b.Hash),
		zap.Uint64("block_number", b.Sequence),
	)
	return b.Clone(), nil
}

// GetBlock implements Ledger. Lookups are not supported on this backend.
func (c *FabricChain) GetBlock(_ context.Context, _ string) (*Block, error) {
	return nil, ErrNotFound
}

// GetAllBlocks implements Ledger. Enumeration is not supported on this backend.
func (c *FabricChain) GetAllBlocks(_ context.Context) ([]*Block, error) {
	return []*Block{}, nil
}

// classifyFabricError maps gRPC transport failures to ErrUnavailable and
// endorsement, submit and commit rejections to ErrWriteFailed.
func classifyFabricError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

// gatewaySubmitter drives the endorse, submit and commit-status flow of the
// Fabric Gateway client.
type gatewaySubmitter struct {
	conn     *grpc.ClientConn
	gateway  *client.Gateway
	contract *client.Contract
}

func dialGateway(_ context.Context, cfg FabricConfig) (chaincodeSubmitter, error) {
	certPEM, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("fabric: read certificate: %w", err)
	}
	cert, err := identity.CertificateFromPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("fabric: parse certificate: %w", err)
	}
	id, err := identity.NewX509Identity(cfg.MSPID, cert)
	if err != nil {
		return nil, fmt.Errorf("fabric: build identity: %w", err)
	}

	keyPEM, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("fabric: read private key: %w", err)
	}
	key, err := identity.PrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("fabric: parse private key: %w", err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, fmt.Errorf("fabric: build signer: %w", err)
	}

	tlsPEM, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("fabric: read TLS certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(tlsPEM) {
		return nil, fmt.Errorf("fabric: TLS certificate %s contains no PEM certificates", cfg.TLSCertPath)
	}

	conn, err := grpc.NewClient(cfg.PeerEndpoint,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(pool, cfg.GatewayPeer)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dial fabric peer %s: %w", ErrUnavailable, cfg.PeerEndpoint, err)
	}

	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: connect fabric gateway: %w", ErrUnavailable, err)
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)
	return &gatewaySubmitter{conn: conn, gateway: gw, contract: contract}, nil
}

func (g *gatewaySubmitter) Submit(ctx context.Context, fn string, args ...string) (*fabricReceipt, error) {
	proposal, err := g.contract.NewProposal(fn, client.WithArguments(args...))
	if err != nil {
		return nil, fmt.Errorf("build proposal: %w", err)
	}
	txn, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("endorse: %w", err)
	}
	commit, err := txn.SubmitWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	st, err := commit.StatusWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("commit status: %w", err)
	}
	if !st.Successful {
		return nil, fmt.Errorf("%w: %s (code %d)", errCommitRejected, st.TransactionID, int32(st.Code))
	}
	return &fabricReceipt{TxID: proposal.TransactionID(), BlockNumber: st.BlockNumber}, nil
}

func (g *gatewaySubmitter) Close() error {
	g.gateway.Close()
	return g.conn.Close()
}
