package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/identity"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/vault"
	"github.com/jmerrifield20/bharatchain/internal/webhooks"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const devJWTSecret = "bharatchain-development-secret-change-me"

// loadConfig registers defaults and reads the optional config file. Every key
// can be overridden from the environment with dots replaced by underscores
// (chain.backend → CHAIN_BACKEND).
func loadConfig() (bool, error) {
	viper.SetConfigName("bharatchain")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", "development")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.grpc_port", 9090)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	viper.SetDefault("server.rate_limit_per_minute", 60)

	viper.SetDefault("database.url", "")
	viper.SetDefault("database.migrate_on_start", false)
	viper.SetDefault("redis.url", "")

	viper.SetDefault("chain.backend", ledger.BackendSimulation)
	viper.SetDefault("chain.connect_timeout", "30s")
	viper.SetDefault("chain.ethereum.rpc_url", "http://127.0.0.1:8545")
	viper.SetDefault("chain.ethereum.chain_id", 1337)
	viper.SetDefault("chain.ethereum.private_key", "")
	viper.SetDefault("chain.ethereum.receipt_timeout", "30s")
	viper.SetDefault("chain.fabric.peer_endpoint", "localhost:7051")
	viper.SetDefault("chain.fabric.gateway_peer", "peer0.uidai.bharatchain.gov.in")
	viper.SetDefault("chain.fabric.msp_id", "UIDAIMSP")
	viper.SetDefault("chain.fabric.cert_path", "")
	viper.SetDefault("chain.fabric.key_path", "")
	viper.SetDefault("chain.fabric.tls_cert_path", "")
	viper.SetDefault("chain.fabric.channel", "bharatchain-channel")
	viper.SetDefault("chain.fabric.chaincode", "identity-chaincode")
	viper.SetDefault("chain.fabric.submit_timeout", "30s")

	viper.SetDefault("crypto.encryption_key", "")
	viper.SetDefault("crypto.jwt_secret", "")
	viper.SetDefault("crypto.jwt_expiry", "30m")
	viper.SetDefault("crypto.biometric_iterations", identity.DefaultBiometricIterations)

	viper.SetDefault("consent.max_duration_days", 365)
	viper.SetDefault("consent.default_duration_days", 30)
	viper.SetDefault("consent.cache_ttl", "30s")

	viper.SetDefault("audit.kafka_brokers", []string{})
	viper.SetDefault("audit.kafka_topic", "bharatchain.audit")
	viper.SetDefault("audit.webhook_urls", []string{})
	viper.SetDefault("audit.webhook_secret", "")
	viper.SetDefault("audit.webhook_actions", []string{})

	viper.SetDefault("health.check_interval", "1m")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return false, fmt.Errorf("read config: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func isDevelopment() bool {
	return strings.EqualFold(viper.GetString("environment"), "development")
}

// newLogger builds a development logger in development and a JSON production
// logger elsewhere, both at log.level.
func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if isDevelopment() {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// ledgerConfig maps chain.* keys onto ledger.Config.
func ledgerConfig() ledger.Config {
	return ledger.Config{
		Backend: viper.GetString("chain.backend"),
		Ethereum: ledger.EthereumConfig{
			RPCURL:         viper.GetString("chain.ethereum.rpc_url"),
			ChainID:        viper.GetInt64("chain.ethereum.chain_id"),
			PrivateKey:     viper.GetString("chain.ethereum.private_key"),
			ReceiptTimeout: viper.GetDuration("chain.ethereum.receipt_timeout"),
		},
		Fabric: ledger.FabricConfig{
			PeerEndpoint:  viper.GetString("chain.fabric.peer_endpoint"),
			GatewayPeer:   viper.GetString("chain.fabric.gateway_peer"),
			MSPID:         viper.GetString("chain.fabric.msp_id"),
			CertPath:      viper.GetString("chain.fabric.cert_path"),
			KeyPath:       viper.GetString("chain.fabric.key_path"),
			TLSCertPath:   viper.GetString("chain.fabric.tls_cert_path"),
			Channel:       viper.GetString("chain.fabric.channel"),
			Chaincode:     viper.GetString("chain.fabric.chaincode"),
			SubmitTimeout: viper.GetDuration("chain.fabric.submit_timeout"),
		},
	}
}

// newCipher loads crypto.encryption_key. In development a missing key is
// replaced by an ephemeral one; data encrypted with it is unreadable after a
// restart.
func newCipher(logger *zap.Logger) (*vault.Cipher, error) {
	key := viper.GetString("crypto.encryption_key")
	if key == "" {
		if !isDevelopment() {
			return nil, errors.New("crypto.encryption_key is required outside development")
		}
		generated, err := vault.GenerateKey()
		if err != nil {
			return nil, err
		}
		logger.Warn("crypto.encryption_key not set; using an ephemeral key (development only)")
		key = generated
	}
	return vault.NewCipher(key)
}

// jwtSecret returns crypto.jwt_secret. The secret also peppers UID hashes, so
// it must stay stable for the lifetime of the database.
func jwtSecret(logger *zap.Logger) (string, error) {
	secret := viper.GetString("crypto.jwt_secret")
	if secret != "" {
		return secret, nil
	}
	if !isDevelopment() {
		return "", errors.New("crypto.jwt_secret is required outside development")
	}
	logger.Warn("crypto.jwt_secret not set; using the built-in development secret")
	return devJWTSecret, nil
}

// randomID returns a short hex identifier for this process.
func randomID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// txTimeoutMargin is the headroom a consent transaction keeps above the
// ledger's write timeout for its own statements.
const txTimeoutMargin = 10 * time.Second

// consentTxTimeout returns consent.tx_timeout, or the active backend's ledger
// write timeout plus txTimeoutMargin when unset.
func consentTxTimeout(cfg ledger.Config) time.Duration {
	if d := viper.GetDuration("consent.tx_timeout"); d > 0 {
		return d
	}
	write := 30 * time.Second
	switch cfg.Backend {
	case ledger.BackendEthereum:
		if cfg.Ethereum.ReceiptTimeout > 0 {
			write = cfg.Ethereum.ReceiptTimeout
		}
	case ledger.BackendFabric:
		if cfg.Fabric.SubmitTimeout > 0 {
			write = cfg.Fabric.SubmitTimeout
		}
	default:
		return consent.DefaultTxTimeout
	}
	return write + txTimeoutMargin
}

func durationOr(key string, def time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return def
}

// webhookSubscriptions builds one subscription per URL, all sharing
// audit.webhook_secret and the audit.webhook_actions filter.
func webhookSubscriptions(urls []string) []webhooks.Subscription {
	var actions []audit.Action
	for _, a := range viper.GetStringSlice("audit.webhook_actions") {
		actions = append(actions, audit.Action(strings.ToUpper(a)))
	}
	secret := viper.GetString("audit.webhook_secret")
	subs := make([]webhooks.Subscription, 0, len(urls))
	for _, u := range urls {
		subs = append(subs, webhooks.Subscription{URL: u, Secret: secret, Actions: actions})
	}
	return subs
}
