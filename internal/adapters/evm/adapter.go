// Package evm implements the venue collaborators against UniswapV2-style routers, masterchef
// staking contracts and an option hedger, over Ethereum JSON-RPC.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

var (
	ErrAccountMismatch = errors.New("signing account does not hold the joint funds")
	ErrUnexpectedABI   = errors.New("unexpected contract response")
	ErrNoRoute         = errors.New("no swap route")
	ErrCallFailed      = errors.New("contract call failed")
)

var evmLogger = logger.GetForComponent("evm_adapter")

// Chain is the signing account used by the adapter. *wallet.SigningClient implements it.
type Chain interface {
	Address() common.Address
	// Call performs an eth_call from Address.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// SendTx signs, broadcasts and waits for a transaction, failing if it reverts.
	SendTx(ctx context.Context, to common.Address, data []byte) (*ethtypes.Receipt, error)
}

// Options tune the live adapter.
type Options struct {
	// SlippageBps is the tolerated shortfall against quoted outputs. Defaults to 100.
	SlippageBps uint32
	// Deadline is added to the current time for router deadlines. Defaults to 20 minutes.
	Deadline time.Duration
	// MaxRetries bounds retries of read-only calls. Defaults to 3.
	MaxRetries int
	Clock      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SlippageBps == 0 {
		o.SlippageBps = 100
	}
	if o.Deadline <= 0 {
		o.Deadline = 20 * time.Minute
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

var (
	_ adapters.AMM      = (*Adapter)(nil)
	_ adapters.Staking  = (*Adapter)(nil)
	_ adapters.Hedge    = (*Adapter)(nil)
	_ adapters.Tokens   = (*Adapter)(nil)
	_ adapters.Provider = (*Adapter)(nil)
)

// Adapter is bound to one instance and implements every venue collaborator.
type Adapter struct {
	chain   Chain
	inst    types.Instance
	pending abi.ABI
	pendMth string
	opts    Options
	reads   failsafe.Executor[[]byte]
}

// Bind builds the live venue of an instance. The chain account must be the instance's Self.
func Bind(inst types.Instance, chain Chain, opts Options) (adapters.Venue, error) {
	a, err := NewAdapter(inst, chain, opts)
	if err != nil {
		return adapters.Venue{}, err
	}
	return adapters.Venue{AMM: a, Staking: a, Hedge: a, Tokens: a, Provider: a}, nil
}

// NewAdapter validates the binding and prepares the variant specific ABI.
func NewAdapter(inst types.Instance, chain Chain, opts Options) (*Adapter, error) {
	if chain == nil {
		return nil, errors.New("chain cannot be nil")
	}
	if chain.Address() != inst.Self {
		return nil, fmt.Errorf("%w: signer %s, instance %s holds funds at %s",
			ErrAccountMismatch, chain.Address().Hex(), inst.ID, inst.Self.Hex())
	}
	variant, err := adapters.LookupVariant(inst.Variant)
	if err != nil {
		return nil, err
	}
	pending, err := pendingABI(variant.PendingMethod())
	if err != nil {
		return nil, fmt.Errorf("failed to build pending reward ABI: %w", err)
	}

	opts = opts.withDefaults()
	retry := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(opts.MaxRetries).
		Build()

	return &Adapter{
		chain:   chain,
		inst:    inst,
		pending: pending,
		pendMth: variant.PendingMethod(),
		opts:    opts,
		reads:   failsafe.With[[]byte](retry),
	}, nil
}

// view performs a retried read-only call and decodes its outputs.
func (a *Adapter) view(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := a.reads.WithContext(ctx).Get(func() ([]byte, error) {
		return a.chain.Call(ctx, to, data)
	})
	if err != nil {
		return nil, errors.Join(ErrCallFailed, fmt.Errorf("%s on %s: %w", method, to.Hex(), err))
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrUnexpectedABI, method, to.Hex(), err)
	}
	return values, nil
}

// preview simulates a state-changing call once, without retries.
func (a *Adapter) preview(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := a.chain.Call(ctx, to, data)
	if err != nil {
		return nil, errors.Join(ErrCallFailed, fmt.Errorf("%s preview on %s: %w", method, to.Hex(), err))
	}
	return contract.Unpack(method, out)
}

func (a *Adapter) send(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	receipt, err := a.chain.SendTx(ctx, to, data)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", method, to.Hex(), err)
	}
	evmLogger.Debug().
		Str("instance", a.inst.ID).
		Str("method", method).
		Str("contract", to.Hex()).
		Str("txHash", receipt.TxHash.Hex()).
		Msg("Contract call executed")
	return nil
}

func (a *Adapter) deadline() *big.Int {
	return big.NewInt(a.opts.Clock().Add(a.opts.Deadline).Unix())
}

// minOut applies the slippage tolerance to an expected amount.
func (a *Adapter) minOut(expected sdkmath.Int) sdkmath.Int {
	return expected.MulRaw(int64(10000 - a.opts.SlippageBps)).QuoRaw(10000)
}

func uintAt(values []interface{}, i int) (sdkmath.Int, error) {
	if i >= len(values) {
		return sdkmath.Int{}, fmt.Errorf("%w: missing output %d", ErrUnexpectedABI, i)
	}
	v, ok := values[i].(*big.Int)
	if !ok || v == nil {
		return sdkmath.Int{}, fmt.Errorf("%w: output %d is %T", ErrUnexpectedABI, i, values[i])
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

func addressAt(values []interface{}, i int) (common.Address, error) {
	if i >= len(values) {
		return common.Address{}, fmt.Errorf("%w: missing output %d", ErrUnexpectedABI, i)
	}
	v, ok := values[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: output %d is %T", ErrUnexpectedABI, i, values[i])
	}
	return v, nil
}

func checkPositive(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return adapters.ErrZeroAmount
	}
	return nil
}
