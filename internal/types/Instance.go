package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidInstance = errors.New("instance definition is invalid")
)

// Side names one of the two legs of the pair.
type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

// Other returns the opposite leg.
func (s Side) Other() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	default:
		return SideNone
	}
}

// Leg is one token of the pair together with the provider that funds it.
type Leg struct {
	Token    common.Address `json:"token"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Provider common.Address `json:"provider"`
}

// Precision returns 10^decimals as an integer.
func (l Leg) Precision() sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, int(l.Decimals))
}

// Instance is the identity of one joint position. It is fixed at initialization.
type Instance struct {
	ID      string `json:"id"`
	Variant string `json:"variant"`

	LegA Leg `json:"leg_a"`
	LegB Leg `json:"leg_b"`

	Pair       common.Address `json:"pair"`
	Router     common.Address `json:"router"`
	MasterChef common.Address `json:"masterchef"`
	PoolID     uint64         `json:"pool_id"`
	Reward     common.Address `json:"reward"`
	// BaseAsset is the network's wrapped native token used as the routing hub.
	BaseAsset common.Address `json:"base_asset"`
	Hedger    common.Address `json:"hedger"`
	// Self is the account that holds the joint funds.
	Self common.Address `json:"self"`

	FeeBps uint32 `json:"fee_bps"`
}

// Leg returns the leg for a side.
func (i Instance) Leg(side Side) (Leg, bool) {
	switch side {
	case SideA:
		return i.LegA, true
	case SideB:
		return i.LegB, true
	default:
		return Leg{}, false
	}
}

// SideOf returns which leg a token belongs to.
func (i Instance) SideOf(token common.Address) Side {
	switch token {
	case i.LegA.Token:
		return SideA
	case i.LegB.Token:
		return SideB
	default:
		return SideNone
	}
}

// RewardIsLeg reports whether the reward token is one of the two legs.
func (i Instance) RewardIsLeg() bool {
	return i.SideOf(i.Reward) != SideNone
}

// Validate checks that the identity is complete and self-consistent.
func (i Instance) Validate() error {
	var errs []error
	if i.ID == "" {
		errs = append(errs, errors.New("id cannot be empty"))
	}
	zero := common.Address{}
	for name, addr := range map[string]common.Address{
		"tokenA":     i.LegA.Token,
		"tokenB":     i.LegB.Token,
		"providerA":  i.LegA.Provider,
		"providerB":  i.LegB.Provider,
		"pair":       i.Pair,
		"router":     i.Router,
		"masterchef": i.MasterChef,
		"reward":     i.Reward,
		"baseAsset":  i.BaseAsset,
		"self":       i.Self,
	} {
		if addr == zero {
			errs = append(errs, fmt.Errorf("%s address cannot be zero", name))
		}
	}
	if i.LegA.Token == i.LegB.Token {
		errs = append(errs, errors.New("legs must be different tokens"))
	}
	if i.FeeBps >= RatioPrecision {
		errs = append(errs, errors.New("fee must be below 10000 bps"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidInstance}, errs...)...)
	}
	return nil
}
