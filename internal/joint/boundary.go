package joint

import (
	"context"
	"errors"
	"fmt"

	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/metrics"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// operation is the staged state of one call. Nothing it holds is visible to other
// callers until the boundary commits it.
type operation struct {
	ctx    context.Context
	log    zerolog.Logger
	inst   types.Instance
	staged types.Ledger
	report *types.OperationReport
	dirty  bool
	undo   []compensation
	// settled holds ledger facts of irreversible steps. They survive a rollback
	// that cannot restore the venue.
	settled []func(*types.Ledger)
}

// onFailure registers how to reverse a step that already reached the venue.
func (op *operation) onFailure(step string, undo func(ctx context.Context) error) {
	op.undo = append(op.undo, compensation{step: step, undo: undo})
}

// irreversible logs a step that no compensation can reverse.
func (op *operation) irreversible(step string) {
	op.log.Debug().Str("step", step).Msg("Irreversible step executed")
}

// settle records an irreversible step together with the ledger change it implies.
// The change is staged now and committed even when a later step fails.
func (op *operation) settle(step string, apply func(*types.Ledger)) {
	op.irreversible(step)
	apply(&op.staged)
	op.settled = append(op.settled, apply)
	op.markDirty()
}

func (op *operation) markDirty() {
	op.dirty = true
}

// run executes fn inside the execution boundary of the instance: role check,
// per-instance lock, staged ledger, rollback of the venue on failure and a
// versioned commit once every external call succeeded.
func (j *Joint) run(ctx context.Context, name string, caller common.Address, role access.Role, fn func(op *operation) error) (report types.OperationReport, err error) {
	started := j.now()
	inst := j.Instance()

	operationID := uuid.New().String()
	opLogger := j.logger.With().
		Str("operation_id", operationID).
		Str("operation", name).
		Str("caller", caller.Hex()).
		Logger()

	report = types.NewOperationReport(operationID, inst.ID, name, caller.Hex(), started)
	defer func() {
		report.CompletedAt = j.now()
		report.Success = err == nil
		if err != nil {
			report.Error = err.Error()
		}
		metrics.ObserveOperation(inst.ID, name, started, err)
	}()

	if err := j.access.Require(ctx, role, caller); err != nil {
		opLogger.Warn().Err(err).Msg("Operation rejected")
		return report, err
	}

	release, err := j.locker.Acquire(ctx, j.lockKey)
	if err != nil {
		return report, err
	}
	defer func() {
		if relErr := release(); relErr != nil {
			opLogger.Error().Err(relErr).Msg("Failed to release operation lock")
		}
	}()

	opLogger.Info().Msg("--- Starting operation ---")

	ledger, err := j.store.LoadLedger(ctx, inst.ID)
	if err != nil {
		return report, fmt.Errorf("failed to load ledger: %w", err)
	}
	report.Cycle = ledger.Cycle

	op := &operation{
		ctx:    ctx,
		log:    opLogger,
		inst:   inst,
		staged: ledger.Clone(),
		report: &report,
	}

	var restore func()
	if j.venue.Tx != nil {
		restore = j.venue.Tx.Snapshot()
	}

	err = fn(op)
	if err == nil && op.dirty {
		var committed types.Ledger
		committed, err = j.store.SaveLedger(ctx, op.staged)
		if err == nil {
			report.Cycle = committed.Cycle
			metrics.SetHedgeOpen(inst.ID, committed.Hedge.IsOpen())
			opLogger.Info().
				Uint64("version", committed.Version).
				Str("state", string(committed.State())).
				Msg("Ledger committed")
		}
	}

	if err != nil {
		err = j.rollback(op, restore, err)
		opLogger.Error().Err(err).Msg("Operation failed, state rolled back")
	} else {
		opLogger.Info().Dur("duration", j.now().Sub(started)).Msg("--- Operation completed ---")
	}

	j.saveReport(ctx, opLogger, report, err)
	return report, err
}

// rollback restores the venue snapshot when there is one, otherwise runs the
// registered compensations newest first and commits the settled facts. The
// staged ledger itself is discarded.
func (j *Joint) rollback(op *operation, restore func(), cause error) error {
	if restore != nil {
		restore()
		metrics.RollbacksTotal.WithLabelValues(op.inst.ID, "snapshot").Inc()
		return cause
	}

	errs := []error{cause}
	if len(op.undo) > 0 {
		metrics.RollbacksTotal.WithLabelValues(op.inst.ID, "compensation").Inc()
		ctx := context.WithoutCancel(op.ctx)
		for i := len(op.undo) - 1; i >= 0; i-- {
			c := op.undo[i]
			if err := c.undo(ctx); err != nil {
				op.log.Error().Err(err).Str("step", c.step).Msg("Compensation failed")
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrCompensationFailed, c.step, err))
				continue
			}
			op.log.Warn().Str("step", c.step).Msg("Step compensated")
		}
	}
	if err := j.commitSettled(op); err != nil {
		op.log.Error().Err(err).Msg("Failed to commit settled steps")
		errs = append(errs, err)
	}
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}

// commitSettled applies the settled facts to the latest committed ledger, so the
// ledger never points at venue state that no longer exists.
func (j *Joint) commitSettled(op *operation) error {
	if len(op.settled) == 0 {
		return nil
	}
	ctx := context.WithoutCancel(op.ctx)
	ledger, err := j.store.LoadLedger(ctx, op.inst.ID)
	if err != nil {
		return fmt.Errorf("failed to reload ledger: %w", err)
	}
	for _, apply := range op.settled {
		apply(&ledger)
	}
	committed, err := j.store.SaveLedger(ctx, ledger)
	if err != nil {
		return fmt.Errorf("failed to save settled ledger: %w", err)
	}
	metrics.SetHedgeOpen(op.inst.ID, committed.Hedge.IsOpen())
	op.log.Warn().
		Uint64("version", committed.Version).
		Int("steps", len(op.settled)).
		Msg("Settled steps committed after rollback")
	return nil
}

// saveReport persists the outcome. Calls rejected by the role check never reach it.
func (j *Joint) saveReport(ctx context.Context, log zerolog.Logger, report types.OperationReport, err error) {
	report.CompletedAt = j.now()
	report.Success = err == nil
	if err != nil {
		report.Error = err.Error()
	}
	if saveErr := j.store.SaveReport(context.WithoutCancel(ctx), report); saveErr != nil {
		log.Error().Err(saveErr).Msg("Failed to save operation report")
	}
}
