package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/lock"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/state"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyInitialized = errors.New("instance is already initialized")
	ErrAccountInUse       = errors.New("account already holds another instance")
	ErrSameLegs           = errors.New("both providers want the same token")
)

// BindFunc builds the venue adapters of an instance.
type BindFunc func(inst types.Instance) (adapters.Venue, error)

// Config holds the dependencies shared by every instance the factory builds.
type Config struct {
	Store state.Store
	Bind  BindFunc
	// Locker defaults to one in-process lock shared by all instances.
	Locker lock.Locker
	// LockKey, when set, is used by every instance instead of its own id.
	LockKey string
	Clock   func() time.Time
}

// Factory creates instances that share the controller code but never its state.
type Factory struct {
	logger  zerolog.Logger
	store   state.Store
	bind    BindFunc
	locker  lock.Locker
	lockKey string
	clock   func() time.Time
}

// Spec is the per-instance parameter set of a clone. Zero addresses inherit from the prototype.
type Spec struct {
	ID         string
	ProviderA  common.Address
	ProviderB  common.Address
	Pair       common.Address
	Router     common.Address
	MasterChef common.Address
	PoolID     *uint64
	Reward     common.Address
	Hedger     common.Address
	Self       common.Address
}

// New creates a factory.
func New(cfg Config) (*Factory, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Bind == nil {
		return nil, fmt.Errorf("bind function cannot be nil")
	}
	f := &Factory{
		logger:  logger.GetForComponent("instance_factory"),
		store:   cfg.Store,
		bind:    cfg.Bind,
		locker:  cfg.Locker,
		lockKey: cfg.LockKey,
		clock:   cfg.Clock,
	}
	if f.locker == nil {
		f.locker = lock.NewLocalLocker()
	}
	return f, nil
}

// Clone derives a new, uninitialized instance from prototype. The legs are the tokens the two
// providers want, and missing symbols and decimals are read from the token contracts.
func (f *Factory) Clone(ctx context.Context, prototype types.Instance, spec Spec) (types.Instance, error) {
	inst := prototype
	inst.ID = spec.ID
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	inst.Self = spec.Self
	inst.Hedger = pick(spec.Hedger, prototype.Hedger)
	inst.Pair = pick(spec.Pair, prototype.Pair)
	inst.Router = pick(spec.Router, prototype.Router)
	inst.MasterChef = pick(spec.MasterChef, prototype.MasterChef)
	inst.Reward = pick(spec.Reward, prototype.Reward)
	if spec.PoolID != nil {
		inst.PoolID = *spec.PoolID
	}
	inst.LegA = types.Leg{Provider: pick(spec.ProviderA, prototype.LegA.Provider)}
	inst.LegB = types.Leg{Provider: pick(spec.ProviderB, prototype.LegB.Provider)}

	venue, err := f.bind(inst)
	if err != nil {
		return types.Instance{}, fmt.Errorf("failed to bind venue: %w", err)
	}
	if err := f.resolveLegs(ctx, venue, &inst); err != nil {
		return types.Instance{}, err
	}
	if err := inst.Validate(); err != nil {
		return types.Instance{}, err
	}

	f.logger.Info().
		Str("prototype", prototype.ID).
		Str("instance", inst.ID).
		Str("tokenA", inst.LegA.Symbol).
		Str("tokenB", inst.LegB.Symbol).
		Msg("Instance cloned")
	return inst, nil
}

func pick(override, fallback common.Address) common.Address {
	if override != (common.Address{}) {
		return override
	}
	return fallback
}

func (f *Factory) resolveLegs(ctx context.Context, venue adapters.Venue, inst *types.Instance) error {
	for _, leg := range []*types.Leg{&inst.LegA, &inst.LegB} {
		want, err := venue.Provider.Want(ctx, leg.Provider)
		if err != nil {
			return fmt.Errorf("failed to read want of provider %s: %w", leg.Provider.Hex(), err)
		}
		leg.Token = want
	}
	if inst.LegA.Token == inst.LegB.Token {
		return fmt.Errorf("%w: %s", ErrSameLegs, inst.LegA.Token.Hex())
	}
	return ResolveMetadata(ctx, venue.Tokens, inst)
}

// ResolveMetadata fills empty leg symbols and zero decimals from the token contracts.
func ResolveMetadata(ctx context.Context, tokens adapters.Tokens, inst *types.Instance) error {
	for _, leg := range []*types.Leg{&inst.LegA, &inst.LegB} {
		if leg.Symbol == "" {
			symbol, err := tokens.Symbol(ctx, leg.Token)
			if err != nil {
				return fmt.Errorf("failed to read symbol of %s: %w", leg.Token.Hex(), err)
			}
			leg.Symbol = symbol
		}
		if leg.Decimals == 0 {
			decimals, err := tokens.Decimals(ctx, leg.Token)
			if err != nil {
				return fmt.Errorf("failed to read decimals of %s: %w", leg.Token.Hex(), err)
			}
			leg.Decimals = decimals
		}
	}
	return nil
}

// Initialize persists the identity together with an idle ledger and returns its controller.
// An instance can be initialized once.
func (f *Factory) Initialize(ctx context.Context, inst types.Instance, params types.Parameters) (*joint.Joint, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := f.checkAccountFree(ctx, inst); err != nil {
		return nil, err
	}
	venue, err := f.bind(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to bind venue: %w", err)
	}

	if _, err := f.store.CreateInstance(ctx, inst, types.NewLedger(inst.ID, params)); err != nil {
		if errors.Is(err, state.ErrInstanceExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, inst.ID)
		}
		return nil, fmt.Errorf("failed to persist instance: %w", err)
	}

	f.logger.Info().
		Str("instance", inst.ID).
		Str("providerA", inst.LegA.Provider.Hex()).
		Str("providerB", inst.LegB.Provider.Hex()).
		Uint64("poolID", inst.PoolID).
		Msg("Instance initialized")
	return f.controller(inst, venue)
}

// Open returns the controller of an initialized instance.
func (f *Factory) Open(ctx context.Context, instanceID string) (*joint.Joint, error) {
	inst, err := f.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	venue, err := f.bind(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to bind venue: %w", err)
	}
	return f.controller(inst, venue)
}

// OpenOrInitialize opens inst if it was initialized before and initializes it otherwise.
// A stored identity always wins over the given one.
func (f *Factory) OpenOrInitialize(ctx context.Context, inst types.Instance, params types.Parameters) (*joint.Joint, bool, error) {
	j, err := f.Open(ctx, inst.ID)
	if err == nil {
		return j, false, nil
	}
	if !errors.Is(err, state.ErrInstanceNotFound) {
		return nil, false, err
	}
	j, err = f.Initialize(ctx, inst, params)
	return j, err == nil, err
}

func (f *Factory) checkAccountFree(ctx context.Context, inst types.Instance) error {
	existing, err := f.store.ListInstances(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}
	for _, other := range existing {
		if other.ID != inst.ID && other.Self == inst.Self {
			return fmt.Errorf("%w: %s is used by %s", ErrAccountInUse, inst.Self.Hex(), other.ID)
		}
	}
	return nil
}

func (f *Factory) controller(inst types.Instance, venue adapters.Venue) (*joint.Joint, error) {
	return joint.New(joint.Config{
		Instance: inst,
		Venue:    venue,
		Store:    f.store,
		Locker:   f.locker,
		LockKey:  f.lockKey,
		Clock:    f.clock,
	})
}
