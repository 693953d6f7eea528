package joint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/lock"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/state"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/valuation"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrNothingToInvest       = errors.New("both legs need a positive balance to invest")
	ErrAlreadyInvested       = errors.New("position is already invested")
	ErrUnsupportedSwapTarget = errors.New("token cannot be swapped by this joint")
	ErrSweepForbidden        = errors.New("token cannot be swept")
	ErrProviderMismatch      = errors.New("provider does not want this leg")
	ErrNotIdle               = errors.New("operation requires an idle position")
	ErrCompensationFailed    = errors.New("rollback step failed")
)

// Joint is the lifecycle controller of one jointly funded LP position.
type Joint struct {
	logger  zerolog.Logger
	venue   adapters.Venue
	store   state.Store
	locker  lock.Locker
	access  *access.Control
	quoter  valuation.Quoter
	variant adapters.RewardVariant
	lockKey string
	now     func() time.Time

	mu   sync.RWMutex
	inst types.Instance
}

// Config holds the dependencies of a Joint.
type Config struct {
	Instance types.Instance
	Venue    adapters.Venue
	Store    state.Store
	// Locker defaults to an in-process lock.
	Locker lock.Locker
	// LockKey defaults to the instance id. Instances sharing a venue that snapshots
	// its whole state must share a key.
	LockKey string
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// New creates a Joint with dependency injection. The instance must already be initialized in the store.
func New(cfg Config) (*Joint, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("joint configuration validation failed: %w", err)
	}
	variant, err := adapters.LookupVariant(cfg.Instance.Variant)
	if err != nil {
		return nil, err
	}

	j := &Joint{
		logger:  logger.ForInstance("joint_controller", cfg.Instance.ID),
		venue:   cfg.Venue,
		store:   cfg.Store,
		locker:  cfg.Locker,
		access:  access.NewControl(cfg.Venue.Provider, cfg.Instance.LegA.Provider, cfg.Instance.LegB.Provider),
		quoter:  valuation.NewConstantProduct(cfg.Instance.FeeBps),
		variant: variant,
		lockKey: cfg.LockKey,
		now:     cfg.Clock,
		inst:    cfg.Instance,
	}
	if j.locker == nil {
		j.locker = lock.NewLocalLocker()
	}
	if j.lockKey == "" {
		j.lockKey = cfg.Instance.ID
	}
	if j.now == nil {
		j.now = time.Now
	}

	j.logger.Info().
		Str("name", j.Name()).
		Str("pair", cfg.Instance.Pair.Hex()).
		Uint64("poolID", cfg.Instance.PoolID).
		Msg("Joint instance created successfully with dependency injection")

	return j, nil
}

// validateConfig validates the joint configuration
func validateConfig(cfg Config) error {
	if err := cfg.Instance.Validate(); err != nil {
		return err
	}
	if err := cfg.Venue.Validate(); err != nil {
		return err
	}
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	return nil
}

// Instance returns the current identity.
func (j *Joint) Instance() types.Instance {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inst
}

// ID returns the instance id.
func (j *Joint) ID() string {
	return j.Instance().ID
}

// Venue returns the collaborators of the instance.
func (j *Joint) Venue() adapters.Venue {
	return j.venue
}

// Access returns the role checker of the instance.
func (j *Joint) Access() *access.Control {
	return j.access
}

// Name renders the display name, e.g. "JointOfSpookySwap(WFTM-USDC)".
func (j *Joint) Name() string {
	inst := j.Instance()
	return fmt.Sprintf("JointOf%s(%s-%s)", j.variant.Name(), inst.LegA.Symbol, inst.LegB.Symbol)
}

// Ledger returns the committed ledger.
func (j *Joint) Ledger(ctx context.Context) (types.Ledger, error) {
	return j.store.LoadLedger(ctx, j.ID())
}

// FindSwapLeg returns the token that token should be swapped into:
// the opposite leg for a leg, and for the reward the base asset when it is a leg, else leg A.
func (j *Joint) FindSwapLeg(token common.Address) (common.Address, error) {
	return findSwapLeg(j.Instance(), token)
}

func findSwapLeg(inst types.Instance, token common.Address) (common.Address, error) {
	switch token {
	case inst.LegA.Token:
		return inst.LegB.Token, nil
	case inst.LegB.Token:
		return inst.LegA.Token, nil
	case inst.Reward:
		if inst.LegA.Token == inst.BaseAsset || inst.LegB.Token == inst.BaseAsset {
			return inst.BaseAsset, nil
		}
		return inst.LegA.Token, nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnsupportedSwapTarget, token.Hex())
	}
}

// ShouldStartEpoch reports whether an invest call would pass its preconditions now.
func (j *Joint) ShouldStartEpoch(ctx context.Context) (bool, error) {
	ledger, err := j.Ledger(ctx)
	if err != nil {
		return false, err
	}
	if !ledger.IsIdle() {
		return false, nil
	}
	inst := j.Instance()
	balA, err := j.venue.Tokens.BalanceOf(ctx, inst.LegA.Token)
	if err != nil {
		return false, err
	}
	balB, err := j.venue.Tokens.BalanceOf(ctx, inst.LegB.Token)
	if err != nil {
		return false, err
	}
	return balA.IsPositive() && balB.IsPositive(), nil
}

// ShouldEndEpoch reports whether the position has run for its hedge period,
// ending early by the minimum time to maturity when a hedge is open.
func (j *Joint) ShouldEndEpoch(ctx context.Context, now time.Time) (bool, error) {
	ledger, err := j.Ledger(ctx)
	if err != nil {
		return false, err
	}
	if ledger.IsIdle() || ledger.InvestedAt.IsZero() {
		return false, nil
	}
	end := ledger.InvestedAt.Add(ledger.Params.HedgePeriod)
	if ledger.Hedge.IsOpen() {
		end = end.Add(-ledger.Params.MinTimeToMaturity)
	}
	return !now.Before(end), nil
}

// applyBps returns amount*(10000-bps)/10000.
func applyBps(amount sdkmath.Int, bps uint32) (sdkmath.Int, error) {
	keep := sdkmath.NewInt(int64(types.RatioPrecision - bps))
	return valuation.MulDiv(amount, keep, sdkmath.NewInt(types.RatioPrecision))
}
