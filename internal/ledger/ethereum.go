package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// EthereumConfig configures EthereumChain.
type EthereumConfig struct {
	RPCURL         string
	ChainID        int64
	PrivateKey     string // hex, with or without 0x
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// ethClient is the subset of *ethclient.Client used by EthereumChain.
type ethClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	Close()
}

// EthereumChain anchors each block as a signed, self-addressed transaction whose
// data field is "<block type>:<payload digest>". The block hash is the
// transaction hash and the sequence is the number of the mined block.
//
// Full history enumeration needs an external event indexer, so GetAllBlocks
// always returns an empty slice.
type EthereumChain struct {
	cfg    EthereumConfig
	dial   func(ctx context.Context, url string) (ethClient, error)
	now    func() time.Time
	logger *zap.Logger

	// mu serialises nonce allocation and the local PrevHash bookkeeping.
	mu       sync.Mutex
	client   ethClient
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer
	lastHash string
}

// NewEthereumChain creates an EthereumChain. The network is contacted on Connect.
func NewEthereumChain(cfg EthereumConfig, logger *zap.Logger) *EthereumChain {
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &EthereumChain{
		cfg: cfg,
		dial: func(ctx context.Context, url string) (ethClient, error) {
			return ethclient.DialContext(ctx, url)
		},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		lastHash: GenesisHash,
	}
}

// Connect implements Ledger.
func (c *EthereumChain) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(c.cfg.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("ethereum: parse signing key: %w", err)
	}

	client, err := c.dial(ctx, c.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrUnavailable, c.cfg.RPCURL, err)
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("%w: read block number from %s: %w", ErrUnavailable, c.cfg.RPCURL, err)
	}

	c.client = client
	c.key = key
	c.from = ethcrypto.PubkeyToAddress(key.PublicKey)
	c.signer = types.NewEIP155Signer(big.NewInt(c.cfg.ChainID))

	c.logger.Info("ethereum chain connected",
		zap.String("rpc_url", c.cfg.RPCURL),
		zap.Int64("chain_id", c.cfg.ChainID),
		zap.String("account", c.from.Hex()),
		zap.Uint64("head", head),
	)
	return nil
}

// Disconnect implements Ledger.
func (c *EthereumChain) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}

// Ping implements Ledger.
func (c *EthereumChain) Ping(ctx context.Context) string {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return "disconnected"
	}
	n, err := client.BlockNumber(ctx)
	if err != nil {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("ok: ethereum block #%d", n)
}

// WriteBlock implements Ledger. It blocks until the transaction is mined or
// ReceiptTimeout elapses.
func (c *EthereumChain) WriteBlock(ctx context.Context, blockType string, payload map[string]any) (*Block, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}
	digest, err := PayloadDigest(normalized)
	if err != nil {
		return nil, err
	}
	data := []byte(blockType + ":" + digest)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("%w: ethereum chain is not connected", ErrUnavailable)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, classifyRPCError("read nonce", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classifyRPCError("suggest gas price", err)
	}
	to := c.from
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return nil, classifyRPCError("estimate gas", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign transaction: %w", ErrWriteFailed, err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, classifyRPCError("send transaction", err)
	}

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: transaction %s reverted", ErrWriteFailed, signed.Hash().Hex())
	}

	b := &Block{
		Sequence:  receipt.BlockNumber.Uint64(),
		Type:      blockType,
		Payload:   normalized,
		PrevHash:  c.lastHash,
		Hash:      signed.Hash().Hex(),
		Timestamp: c.now(),
	}
	c.lastHash = b.Hash

	c.logger.Info("block anchored on ethereum",
		zap.String("type", blockType),
		zap.String("tx_hash", b.Hash),
		zap.Uint64("block_number", b.Sequence),
	)
	return b.Clone(), nil
}

func (c *EthereumChain) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, classifyRPCError("read receipt", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for receipt of %s: %w", ErrUnavailable, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBlock implements Ledger. Only the anchor (type and payload digest) is
// recoverable from the network.
func (c *EthereumChain) GetBlock(ctx context.Context, hash string) (*Block, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("%w: ethereum chain is not connected", ErrUnavailable)
	}

	txHash := common.HexToHash(hash)
	tx, pending, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrNotFound
		}
		return nil, classifyRPCError("get transaction", err)
	}
	if pending {
		return nil, ErrNotFound
	}
	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrNotFound
		}
		return nil, classifyRPCError("get receipt", err)
	}

	blockType, digest, _ := strings.Cut(string(tx.Data()), ":")
	return &Block{
		Sequence: receipt.BlockNumber.Uint64(),
		Type:     blockType,
		Payload: map[string]any{
			"payload_digest": digest,
			"nonce":          tx.Nonce(),
		},
		Hash: tx.Hash().Hex(),
	}, nil
}

// GetAllBlocks implements Ledger. Enumeration is not supported on this backend.
func (c *EthereumChain) GetAllBlocks(_ context.Context) ([]*Block, error) {
	return []*Block{}, nil
}

// classifyRPCError maps JSON-RPC error responses (the node rejected the call)
// to ErrWriteFailed and transport failures to ErrUnavailable.
func classifyRPCError(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
