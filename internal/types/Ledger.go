/*

This file defines the persisted state of a joint position: what each provider
contributed in the current epoch, the hedge that protects it and the tunable
strategy parameters.

*/

package types

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
)

// RatioPrecision is the fixed-point scale used for every performance ratio (1.0 == 10000).
const RatioPrecision = 10000

var (
	ErrPartialHedge       = errors.New("hedge has exactly one leg set")
	ErrPartialInvestment  = errors.New("ledger has exactly one contribution set")
	ErrInvalidParameter   = errors.New("strategy parameter is invalid")
	ErrNegativeAmount     = errors.New("ledger amount is negative")
	ErrLedgerInstanceID   = errors.New("ledger instance id is empty")
	ErrHedgeAlreadyActive = errors.New("hedge is already active")
)

// LifecycleState is derived from the contributions, never stored.
type LifecycleState string

const (
	StateIdle     LifecycleState = "idle"
	StateInvested LifecycleState = "invested"
)

// Hedge identifies the call/put pair opened against the pool position.
// Both zero means no hedge is open.
type Hedge struct {
	CallID sdkmath.Int `json:"call_id"`
	PutID  sdkmath.Int `json:"put_id"`
}

// NoHedge returns the empty hedge.
func NoHedge() Hedge {
	return Hedge{CallID: sdkmath.ZeroInt(), PutID: sdkmath.ZeroInt()}
}

// IsOpen reports whether both option ids are set.
func (h Hedge) IsOpen() bool {
	return isPositive(h.CallID) && isPositive(h.PutID)
}

// Validate rejects a hedge with only one of the two ids set.
func (h Hedge) Validate() error {
	if isPositive(h.CallID) != isPositive(h.PutID) {
		return ErrPartialHedge
	}
	return nil
}

// Parameters are the authorized-settable knobs of one instance.
type Parameters struct {
	HedgeBudgetBps    uint32        `json:"hedge_budget_bps" yaml:"hedge_budget_bps"`
	HedgeMoneynessBps uint32        `json:"hedge_moneyness_bps" yaml:"hedge_moneyness_bps"`
	HedgePeriod       time.Duration `json:"hedge_period" yaml:"hedge_period"`
	// MinTimeToMaturity is how long before hedge expiry an epoch is considered over.
	MinTimeToMaturity time.Duration `json:"min_time_to_maturity" yaml:"min_time_to_maturity"`
}

// Validate checks parameter bounds.
func (p Parameters) Validate() error {
	if p.HedgeBudgetBps > RatioPrecision {
		return errors.Join(ErrInvalidParameter, errors.New("hedge budget must be at most 10000 bps"))
	}
	if p.HedgeMoneynessBps > RatioPrecision {
		return errors.Join(ErrInvalidParameter, errors.New("hedge moneyness must be at most 10000 bps"))
	}
	if p.HedgePeriod <= 0 {
		return errors.Join(ErrInvalidParameter, errors.New("hedge period must be positive"))
	}
	if p.MinTimeToMaturity < 0 || p.MinTimeToMaturity >= p.HedgePeriod {
		return errors.Join(ErrInvalidParameter, errors.New("min time to maturity must be within the hedge period"))
	}
	return nil
}

// Ledger is the persisted aggregate of one joint instance.
type Ledger struct {
	InstanceID   string      `json:"instance_id"`
	ContributedA sdkmath.Int `json:"contributed_a"`
	ContributedB sdkmath.Int `json:"contributed_b"`
	Hedge        Hedge       `json:"hedge"`
	Params       Parameters  `json:"params"`

	// Cycle counts completed invest calls.
	Cycle      uint64    `json:"cycle"`
	InvestedAt time.Time `json:"invested_at"`
	// Version is bumped on every commit and used for optimistic concurrency.
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLedger returns an idle ledger for an instance.
func NewLedger(instanceID string, params Parameters) Ledger {
	return Ledger{
		InstanceID:   instanceID,
		ContributedA: sdkmath.ZeroInt(),
		ContributedB: sdkmath.ZeroInt(),
		Hedge:        NoHedge(),
		Params:       params,
	}
}

// State derives the lifecycle state from the contributions.
func (l Ledger) State() LifecycleState {
	if isPositive(l.ContributedA) || isPositive(l.ContributedB) {
		return StateInvested
	}
	return StateIdle
}

// IsIdle reports whether both contributions are zero.
func (l Ledger) IsIdle() bool {
	return l.State() == StateIdle
}

// Reset clears contributions and the hedge, keeping parameters and counters.
func (l *Ledger) Reset() {
	l.ContributedA = sdkmath.ZeroInt()
	l.ContributedB = sdkmath.ZeroInt()
	l.Hedge = NoHedge()
	l.InvestedAt = time.Time{}
}

// Validate checks the ledger invariants that must hold between operations.
func (l Ledger) Validate() error {
	if l.InstanceID == "" {
		return ErrLedgerInstanceID
	}
	if isNegative(l.ContributedA) || isNegative(l.ContributedB) {
		return ErrNegativeAmount
	}
	if isPositive(l.ContributedA) != isPositive(l.ContributedB) {
		return ErrPartialInvestment
	}
	if err := l.Hedge.Validate(); err != nil {
		return err
	}
	return l.Params.Validate()
}

// Clone returns a copy that can be staged and mutated independently.
func (l Ledger) Clone() Ledger {
	c := l
	c.ContributedA = copyInt(l.ContributedA)
	c.ContributedB = copyInt(l.ContributedB)
	c.Hedge = Hedge{CallID: copyInt(l.Hedge.CallID), PutID: copyInt(l.Hedge.PutID)}
	return c
}

func copyInt(i sdkmath.Int) sdkmath.Int {
	if i.IsNil() {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(i.BigInt())
}

func isPositive(i sdkmath.Int) bool {
	return !i.IsNil() && i.IsPositive()
}

func isNegative(i sdkmath.Int) bool {
	return !i.IsNil() && i.IsNegative()
}
