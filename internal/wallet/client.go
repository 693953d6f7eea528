package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/elys-network/joint/internal/config"
	"github.com/elys-network/joint/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrKeyInvalid         = errors.New("signing key is invalid")
	ErrBackendInvalid     = errors.New("RPC backend is invalid")
	ErrTxSignFailed       = errors.New("transaction signing failed")
	ErrTxBroadcastFailed  = errors.New("transaction broadcast failed")
	ErrTxReverted         = errors.New("transaction reverted")
	ErrReceiptTimeout     = errors.New("timed out waiting for transaction receipt")
	ErrGasEstimateFailure = errors.New("gas estimation failed")
)

var walletLogger = logger.GetForComponent("wallet_client")

// Backend is the part of an Ethereum JSON-RPC client the wallet needs.
type Backend interface {
	ethereum.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// TxSender submits signed transactions. A private transaction RPC only needs this.
type TxSender interface {
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// Config holds what the signing client needs besides its backends.
type Config struct {
	PrivateKey      string
	ChainID         uint64
	DefaultGasLimit uint64
	GasAdjustment   float64
	// PollInterval is how often a pending receipt is polled. Defaults to one second.
	PollInterval time.Duration
	// ReceiptTimeout bounds how long a transaction may stay pending. Defaults to five minutes.
	ReceiptTimeout time.Duration
}

// ConfigFromEnv builds the wallet configuration from the loaded application config.
func ConfigFromEnv() Config {
	return Config{
		PrivateKey:      config.KeeperPrivateKey,
		ChainID:         config.ChainID,
		DefaultGasLimit: config.DefaultGasLimit,
		GasAdjustment:   config.GasAdjustment,
	}
}

// SigningClient signs and sends transactions from the keeper account, one at a time.
type SigningClient struct {
	backend Backend
	sender  TxSender
	key     *ecdsa.PrivateKey
	from    common.Address
	signer  ethtypes.Signer
	chainID *big.Int

	defaultGasLimit uint64
	gasAdjustment   float64
	pollInterval    time.Duration
	receiptTimeout  time.Duration

	// mu serializes nonce assignment and broadcast.
	mu sync.Mutex
}

// NewSigningClient creates a signing client. When private is non-nil signed transactions are
// sent there instead of backend.
func NewSigningClient(cfg Config, backend Backend, private TxSender) (*SigningClient, error) {
	if backend == nil {
		return nil, errors.Join(ErrBackendInvalid, errors.New("backend cannot be nil"))
	}
	if err := validateWalletConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, errors.Join(ErrKeyInvalid, err)
	}

	chainID := new(big.Int).SetUint64(cfg.ChainID)
	client := &SigningClient{
		backend:         backend,
		sender:          backend,
		key:             key,
		from:            crypto.PubkeyToAddress(key.PublicKey),
		signer:          ethtypes.NewEIP155Signer(chainID),
		chainID:         chainID,
		defaultGasLimit: cfg.DefaultGasLimit,
		gasAdjustment:   cfg.GasAdjustment,
		pollInterval:    cfg.PollInterval,
		receiptTimeout:  cfg.ReceiptTimeout,
	}
	if private != nil {
		client.sender = private
	}
	if client.pollInterval <= 0 {
		client.pollInterval = time.Second
	}
	if client.receiptTimeout <= 0 {
		client.receiptTimeout = 5 * time.Minute
	}

	walletLogger.Info().
		Str("address", client.from.Hex()).
		Uint64("chainID", cfg.ChainID).
		Bool("privateTx", private != nil).
		Msg("Signing client initialized successfully")

	return client, nil
}

// validateWalletConfig validates the signing configuration
func validateWalletConfig(cfg Config) error {
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return errors.New("private key cannot be empty")
	}
	if cfg.ChainID == 0 {
		return errors.New("chain id cannot be zero")
	}
	if cfg.DefaultGasLimit == 0 {
		return errors.New("default gas limit cannot be zero")
	}
	if math.IsNaN(cfg.GasAdjustment) || math.IsInf(cfg.GasAdjustment, 0) {
		return errors.New("gas adjustment is not finite")
	}
	if cfg.GasAdjustment < 1 {
		return fmt.Errorf("gas adjustment must be at least 1, got %f", cfg.GasAdjustment)
	}
	return nil
}

// Address returns the keeper account.
func (s *SigningClient) Address() common.Address {
	return s.from
}

// ChainID returns the EIP-155 chain id transactions are signed for.
func (s *SigningClient) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Call executes a read-only call from the keeper account.
func (s *SigningClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.backend.CallContract(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data}, nil)
}
