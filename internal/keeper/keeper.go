package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/metrics"
	"github.com/elys-network/joint/internal/simulations"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Epoch actions taken for one instance in a cycle.
const (
	ActionNone    = "none"
	ActionHarvest = "harvest"
	ActionInvest  = "invest"
	ActionRoll    = "harvest+invest"
)

// Keeper drives the epochs of every managed instance.
type Keeper struct {
	logger      zerolog.Logger
	joints      []*joint.Joint
	projectors  map[string]*simulations.Projector
	returnFunds bool
	clock       func() time.Time

	cycleCount atomic.Int64

	// mu guards joints, projectors and projections.
	mu          sync.RWMutex
	projections map[string]types.Projection
}

// Config holds the configuration for creating a new Keeper
type Config struct {
	Joints []*joint.Joint
	// ReturnFunds makes epoch harvests send proceeds to the providers instead of reinvesting.
	ReturnFunds bool
	Clock       func() time.Time
}

// NewKeeper creates a keeper for the given instances.
func NewKeeper(cfg Config) (*Keeper, error) {
	if err := validateKeeperConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	k := &Keeper{
		logger:      logger.GetForComponent("keeper"),
		joints:      cfg.Joints,
		projectors:  make(map[string]*simulations.Projector, len(cfg.Joints)),
		returnFunds: cfg.ReturnFunds,
		clock:       clock,
		projections: make(map[string]types.Projection),
	}
	for _, j := range cfg.Joints {
		k.projectors[j.ID()] = simulations.NewProjector(j)
	}

	k.logger.Info().
		Int("instances", len(k.joints)).
		Bool("returnFunds", k.returnFunds).
		Msg("Keeper created")
	return k, nil
}

func validateKeeperConfig(cfg Config) error {
	if len(cfg.Joints) == 0 {
		return errors.New("at least one instance is required")
	}
	seen := make(map[string]bool, len(cfg.Joints))
	for _, j := range cfg.Joints {
		if j == nil {
			return errors.New("instance cannot be nil")
		}
		if seen[j.ID()] {
			return fmt.Errorf("instance %s registered twice", j.ID())
		}
		seen[j.ID()] = true
	}
	return nil
}

// Add puts another instance under management, e.g. a clone created at runtime.
func (k *Keeper) Add(j *joint.Joint) error {
	if j == nil {
		return errors.New("instance cannot be nil")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.projectors[j.ID()]; ok {
		return fmt.Errorf("instance %s registered twice", j.ID())
	}
	k.joints = append(k.joints, j)
	k.projectors[j.ID()] = simulations.NewProjector(j)
	k.logger.Info().Str("instance", j.ID()).Int("instances", len(k.joints)).Msg("Instance added")
	return nil
}

func (k *Keeper) managed() []*joint.Joint {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]*joint.Joint(nil), k.joints...)
}

// RunCycle checks the epoch boundaries of every instance and acts on them. A failing
// instance does not stop the others; all failures are returned joined.
func (k *Keeper) RunCycle(ctx context.Context) error {
	cycleStartTime := k.clock()
	cycle := k.cycleCount.Add(1)

	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Int64("cycle", cycle).Logger()
	cycleLogger.Info().Msg("--- Starting keeper cycle ---")

	var errs []error
	for _, j := range k.managed() {
		instLogger := cycleLogger.With().Str("instance", j.ID()).Logger()
		action, err := k.runEpoch(ctx, instLogger, j)
		if err != nil {
			instLogger.Error().Err(err).Str("action", action).Msg("Epoch step failed")
			errs = append(errs, fmt.Errorf("instance %s: %w", j.ID(), err))
			continue
		}
		instLogger.Info().Str("action", action).Msg("Epoch step complete")
	}

	cycleLogger.Info().
		Int("failures", len(errs)).
		Str("cycleDuration", k.clock().Sub(cycleStartTime).String()).
		Msg("--- Keeper cycle finished ---")
	return errors.Join(errs...)
}

// runEpoch ends an expired epoch and starts a new one when the joint holds funds for it.
// The keeper acts as provider A, which is authorized on every instance.
func (k *Keeper) runEpoch(ctx context.Context, log zerolog.Logger, j *joint.Joint) (string, error) {
	caller := j.Instance().LegA.Provider
	action := ActionNone

	end, err := j.ShouldEndEpoch(ctx, k.clock())
	if err != nil {
		return action, fmt.Errorf("failed to check epoch end: %w", err)
	}
	if end {
		log.Info().Bool("returnFunds", k.returnFunds).Msg("Epoch ended, harvesting")
		report, err := j.Harvest(ctx, caller, k.returnFunds)
		if err != nil {
			return ActionHarvest, err
		}
		action = ActionHarvest
		log.Info().
			Str("operationID", report.OperationID).
			Str("finalA", report.FinalA.String()).
			Str("finalB", report.FinalB.String()).
			Msg("Harvest complete")
	}

	start, err := j.ShouldStartEpoch(ctx)
	if err != nil {
		return action, fmt.Errorf("failed to check epoch start: %w", err)
	}
	if !start {
		return action, nil
	}
	log.Info().Msg("Funds available, starting epoch")
	report, err := j.Invest(ctx, caller)
	if err != nil {
		return ActionInvest, err
	}
	log.Info().
		Str("operationID", report.OperationID).
		Str("contributedA", report.ContributedA.String()).
		Str("contributedB", report.ContributedB.String()).
		Msg("Invest complete")
	if action == ActionHarvest {
		return ActionRoll, nil
	}
	return ActionInvest, nil
}

// RefreshProjections recomputes the projection of every instance and publishes it as metrics.
func (k *Keeper) RefreshProjections(ctx context.Context) error {
	var errs []error
	for _, j := range k.managed() {
		k.mu.RLock()
		projector := k.projectors[j.ID()]
		k.mu.RUnlock()
		proj, err := projector.ProjectedAssets(ctx)
		if err != nil {
			k.logger.Warn().Err(err).Str("instance", j.ID()).Msg("Projection failed")
			errs = append(errs, fmt.Errorf("instance %s: %w", j.ID(), err))
			continue
		}
		k.mu.Lock()
		k.projections[j.ID()] = proj
		k.mu.Unlock()

		inst := j.Instance()
		publishProjection(k.logger, inst.ID, "A", proj.AmountA, int(inst.LegA.Decimals))
		publishProjection(k.logger, inst.ID, "B", proj.AmountB, int(inst.LegB.Decimals))
	}
	return errors.Join(errs...)
}

func publishProjection(log zerolog.Logger, instance, leg string, amount sdkmath.Int, decimals int) {
	value, err := utils.SDKIntToFloat64(amount, decimals)
	if err != nil {
		log.Warn().Err(err).Str("instance", instance).Str("leg", leg).Msg("Projection not publishable")
		return
	}
	metrics.ProjectedAssets.WithLabelValues(instance, leg).Set(value)
}

// LatestProjection returns the last projection computed for an instance.
func (k *Keeper) LatestProjection(id string) (types.Projection, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	p, ok := k.projections[id]
	return p, ok
}

// Cycles returns how many epoch cycles have started.
func (k *Keeper) Cycles() int64 {
	return k.cycleCount.Load()
}
