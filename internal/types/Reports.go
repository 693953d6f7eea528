package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Operation names recorded in reports and metrics.
const (
	OpInvest         = "invest"
	OpHarvest        = "harvest"
	OpLiquidate      = "liquidate"
	OpReturnLoose    = "return_loose"
	OpSweep          = "sweep"
	OpSwap           = "swap"
	OpSetParameters  = "set_parameters"
	OpSetProvider    = "set_provider"
	OpManualClaim    = "manual_claim"
	OpManualWithdraw = "manual_withdraw"
	OpManualRemove   = "manual_remove"
	OpManualHedge    = "manual_close_hedge"
)

// RatioSample is one "ratios" event: the performance of each leg at a phase.
type RatioSample struct {
	Phase  string      `json:"phase"`
	RatioA sdkmath.Int `json:"ratio_a"`
	RatioB sdkmath.Int `json:"ratio_b"`
}

// SwapRecord describes a swap executed during an operation.
type SwapRecord struct {
	Purpose   string      `json:"purpose"`
	SellSide  Side        `json:"sell_side,omitempty"`
	TokenIn   string      `json:"token_in"`
	TokenOut  string      `json:"token_out"`
	AmountIn  sdkmath.Int `json:"amount_in"`
	AmountOut sdkmath.Int `json:"amount_out"`
}

// OperationReport is the outcome of one lifecycle call, persisted for later inspection.
type OperationReport struct {
	OperationID string    `json:"operation_id"`
	InstanceID  string    `json:"instance_id"`
	Operation   string    `json:"operation"`
	Caller      string    `json:"caller"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Cycle       uint64    `json:"cycle"`

	// Invest
	ContributedA sdkmath.Int `json:"contributed_a"`
	ContributedB sdkmath.Int `json:"contributed_b"`
	Shares       sdkmath.Int `json:"shares"`
	Hedge        Hedge       `json:"hedge"`

	// Harvest
	FinalA    sdkmath.Int   `json:"final_a"`
	FinalB    sdkmath.Int   `json:"final_b"`
	ReturnedA sdkmath.Int   `json:"returned_a"`
	ReturnedB sdkmath.Int   `json:"returned_b"`
	Ratios    []RatioSample `json:"ratios,omitempty"`
	Swaps     []SwapRecord  `json:"swaps,omitempty"`
	NoOp      bool          `json:"no_op"`
}

// NewOperationReport returns a report with every amount initialised to zero.
func NewOperationReport(operationID, instanceID, operation, caller string, startedAt time.Time) OperationReport {
	return OperationReport{
		OperationID:  operationID,
		InstanceID:   instanceID,
		Operation:    operation,
		Caller:       caller,
		StartedAt:    startedAt,
		ContributedA: sdkmath.ZeroInt(),
		ContributedB: sdkmath.ZeroInt(),
		Shares:       sdkmath.ZeroInt(),
		Hedge:        NoHedge(),
		FinalA:       sdkmath.ZeroInt(),
		FinalB:       sdkmath.ZeroInt(),
		ReturnedA:    sdkmath.ZeroInt(),
		ReturnedB:    sdkmath.ZeroInt(),
	}
}

// Projection is the estimated amount of each leg a full harvest would return now.
type Projection struct {
	InstanceID string    `json:"instance_id"`
	At         time.Time `json:"at"`

	AmountA sdkmath.Int `json:"amount_a"`
	AmountB sdkmath.Int `json:"amount_b"`

	PoolA        sdkmath.Int `json:"pool_a"`
	PoolB        sdkmath.Int `json:"pool_b"`
	LooseA       sdkmath.Int `json:"loose_a"`
	LooseB       sdkmath.Int `json:"loose_b"`
	HedgeProfitA sdkmath.Int `json:"hedge_profit_a"`
	HedgeProfitB sdkmath.Int `json:"hedge_profit_b"`
	RewardSide   Side        `json:"reward_side,omitempty"`
	RewardValue  sdkmath.Int `json:"reward_value"`
	SellSide     Side        `json:"sell_side,omitempty"`
	SellAmount   sdkmath.Int `json:"sell_amount"`
	BuyAmount    sdkmath.Int `json:"buy_amount"`
}

// Amount returns the projected amount for a side.
func (p Projection) Amount(side Side) sdkmath.Int {
	switch side {
	case SideA:
		return p.AmountA
	case SideB:
		return p.AmountB
	default:
		return sdkmath.ZeroInt()
	}
}
