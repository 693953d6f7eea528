/*

This file contains the default strategy parameters of a joint position.

They apply to every instance whose definition does not override them and can be
changed per instance at runtime by governance or a strategist.

*/

package config

import (
	"time"

	"github.com/elys-network/joint/internal/types"
)

// DefaultJointParameters is the baseline hedge configuration of a new instance.
var DefaultJointParameters = types.Parameters{
	HedgeBudgetBps: 50, // Spend 0.5% of each leg on the hedge.
	// Rationale: The hedge only has to cover the impermanent loss of one epoch.
	// Half a percent buys a meaningful strangle without eating the LP yield.

	HedgeMoneynessBps: 1000, // Strikes 10% away from spot.
	// Rationale: Closer strikes cost more than the budget allows. Further strikes
	// leave moves that produce most of the impermanent loss unhedged.

	HedgePeriod: 24 * time.Hour, // One-day epochs.
	// Rationale: Matches the shortest listed option expiry on the hedging venue.

	MinTimeToMaturity: time.Hour, // End the epoch one hour before the options expire.
	// Rationale: Leaves room to close the hedge while it still has time value.
}
