package adapters

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownVariant = errors.New("unknown staking reward variant")
	ErrZeroAmount     = errors.New("amount must be positive")
)

// AMM defines the interface for interacting with the constant-product pool of one instance.
// Every implementation is bound to a single pair and to the account holding the joint funds.
type AMM interface {
	// AddLiquidity deposits up to amountA/amountB and returns the amounts actually used
	// together with the pool shares minted.
	AddLiquidity(ctx context.Context, amountA, amountB sdkmath.Int) (usedA, usedB, shares sdkmath.Int, err error)

	// RemoveLiquidity burns shares and returns the amounts of each leg received.
	RemoveLiquidity(ctx context.Context, shares sdkmath.Int) (amountA, amountB sdkmath.Int, err error)

	// Swap sells amountIn of tokenIn for tokenOut, routing through the base asset
	// when neither token is the base asset. Returns the amount received.
	Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error)

	// QuoteSwap returns the amount Swap would receive without executing it.
	QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error)

	// SwapPath returns the tokens Swap routes through, tokenIn first.
	SwapPath(tokenIn, tokenOut common.Address) ([]common.Address, error)

	// PoolReserves returns the reserves of the pool trading x against y, ordered as x, y.
	PoolReserves(ctx context.Context, x, y common.Address) (reserveX, reserveY sdkmath.Int, err error)

	// Reserves returns the pool reserves ordered as leg A, leg B.
	Reserves(ctx context.Context) (reserveA, reserveB sdkmath.Int, err error)

	// PairSupply returns the total supply of pool shares.
	PairSupply(ctx context.Context) (sdkmath.Int, error)

	// PairBalance returns the unstaked pool shares held by the joint account.
	PairBalance(ctx context.Context) (sdkmath.Int, error)
}

// Staking defines the interface for the masterchef-style reward contract.
// The pool id is fixed when the adapter is built.
type Staking interface {
	Stake(ctx context.Context, shares sdkmath.Int) error
	Unstake(ctx context.Context, shares sdkmath.Int) error
	StakedBalance(ctx context.Context) (sdkmath.Int, error)
	// PendingReward returns rewards accrued but not yet claimed.
	PendingReward(ctx context.Context) (sdkmath.Int, error)
	// Claim collects pending rewards without changing the staked balance.
	Claim(ctx context.Context) error
}

// RewardVariant captures what differs between masterchef families: the display name
// and how pending rewards are queried.
type RewardVariant interface {
	Name() string
	// PendingMethod is the view method returning pending rewards for (pid, user).
	PendingMethod() string
}

// Hedge defines the interface for the option hedging library.
type Hedge interface {
	// Open buys a call/put pair covering the given pool shares and returns their ids.
	Open(ctx context.Context, shares sdkmath.Int, moneynessBps uint32, period time.Duration) (callID, putID sdkmath.Int, err error)

	// Close exercises or sells both options and returns the payout in each leg.
	Close(ctx context.Context, callID, putID sdkmath.Int) (payoutA, payoutB sdkmath.Int, err error)

	// UnrealizedProfit returns what Close would pay out now.
	UnrealizedProfit(ctx context.Context, callID, putID sdkmath.Int) (profitA, profitB sdkmath.Int, err error)
}

// Tokens defines token balance and transfer primitives for the joint account.
type Tokens interface {
	BalanceOf(ctx context.Context, token common.Address) (sdkmath.Int, error)
	Transfer(ctx context.Context, token, to common.Address, amount sdkmath.Int) error
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// Provider exposes the read-only parts of a capital provider used for authorization.
type Provider interface {
	Governance(ctx context.Context, provider common.Address) (common.Address, error)
	Strategist(ctx context.Context, provider common.Address) (common.Address, error)
	Want(ctx context.Context, provider common.Address) (common.Address, error)
}

// Transactional is implemented by venues that can roll their whole state back.
type Transactional interface {
	// Snapshot captures the current state and returns a function restoring it.
	Snapshot() (restore func())
}

// Venue bundles the collaborators of one instance.
type Venue struct {
	AMM      AMM
	Staking  Staking
	Hedge    Hedge
	Tokens   Tokens
	Provider Provider
	// Tx is optional.
	Tx Transactional
}

// Validate checks that every required collaborator is set.
func (v Venue) Validate() error {
	var errs []error
	if v.AMM == nil {
		errs = append(errs, errors.New("AMM adapter cannot be nil"))
	}
	if v.Staking == nil {
		errs = append(errs, errors.New("staking adapter cannot be nil"))
	}
	if v.Hedge == nil {
		errs = append(errs, errors.New("hedge adapter cannot be nil"))
	}
	if v.Tokens == nil {
		errs = append(errs, errors.New("token adapter cannot be nil"))
	}
	if v.Provider == nil {
		errs = append(errs, errors.New("provider adapter cannot be nil"))
	}
	return errors.Join(errs...)
}
