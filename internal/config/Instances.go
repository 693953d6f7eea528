package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoInstances      = errors.New("instances file defines no instances")
	ErrDuplicateID      = errors.New("instance id is defined twice")
	ErrInvalidAddress   = errors.New("invalid hex address")
	ErrInvalidPaperSeed = errors.New("invalid paper seed amount")
)

// InstancesFileSpec is the root of the instances YAML file.
type InstancesFileSpec struct {
	Instances []InstanceSpec `yaml:"instances"`
}

// InstanceSpec is one instance definition. Addresses are hex strings.
// Symbols and decimals may be omitted and are then read from the token contracts.
type InstanceSpec struct {
	ID         string  `yaml:"id"`
	Variant    string  `yaml:"variant"`
	TokenA     string  `yaml:"token_a"`
	TokenB     string  `yaml:"token_b"`
	SymbolA    string  `yaml:"symbol_a"`
	SymbolB    string  `yaml:"symbol_b"`
	DecimalsA  *uint8  `yaml:"decimals_a"`
	DecimalsB  *uint8  `yaml:"decimals_b"`
	ProviderA  string  `yaml:"provider_a"`
	ProviderB  string  `yaml:"provider_b"`
	Pair       string  `yaml:"pair"`
	Router     string  `yaml:"router"`
	MasterChef string  `yaml:"masterchef"`
	PoolID     uint64  `yaml:"pool_id"`
	Reward     string  `yaml:"reward"`
	BaseAsset  string  `yaml:"base_asset"`
	Hedger     string  `yaml:"hedger"`
	Self       string  `yaml:"self"`
	FeeBps     *uint32 `yaml:"fee_bps"`

	Params ParamsSpec `yaml:"params"`
	Paper  *PaperSeed `yaml:"paper"`
}

// ParamsSpec overrides DefaultJointParameters field by field.
type ParamsSpec struct {
	HedgeBudgetBps    *uint32 `yaml:"hedge_budget_bps"`
	HedgeMoneynessBps *uint32 `yaml:"hedge_moneyness_bps"`
	HedgePeriod       string  `yaml:"hedge_period"`
	MinTimeToMaturity string  `yaml:"min_time_to_maturity"`
}

// PaperSeed describes the simulated market of an instance in paper mode.
// Amounts are integer token units.
type PaperSeed struct {
	ReserveA      string `yaml:"reserve_a"`
	ReserveB      string `yaml:"reserve_b"`
	RewardReserve string `yaml:"reward_reserve"`
	FundA         string `yaml:"fund_a"`
	FundB         string `yaml:"fund_b"`
	// Governance and Strategist are shared by both providers in paper mode.
	Governance string `yaml:"governance"`
	Strategist string `yaml:"strategist"`
}

// LoadInstances reads and validates the instances file.
func LoadInstances(path string) ([]InstanceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances file %s: %w", path, err)
	}
	return ParseInstances(raw)
}

// ParseInstances decodes instance definitions from YAML.
func ParseInstances(raw []byte) ([]InstanceSpec, error) {
	var file InstancesFileSpec
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse instances file: %w", err)
	}
	if len(file.Instances) == 0 {
		return nil, ErrNoInstances
	}
	seen := make(map[string]bool, len(file.Instances))
	for _, spec := range file.Instances {
		if seen[spec.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, spec.ID)
		}
		seen[spec.ID] = true
		if _, err := spec.Parameters(); err != nil {
			return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
		}
	}
	return file.Instances, nil
}

// Instance converts the definition into the instance identity.
func (s InstanceSpec) Instance() (types.Instance, error) {
	inst := types.Instance{
		ID:      s.ID,
		Variant: s.Variant,
		PoolID:  s.PoolID,
		FeeBps:  30,
		LegA:    types.Leg{Symbol: s.SymbolA},
		LegB:    types.Leg{Symbol: s.SymbolB},
	}
	if s.FeeBps != nil {
		inst.FeeBps = *s.FeeBps
	}
	if s.DecimalsA != nil {
		inst.LegA.Decimals = *s.DecimalsA
	}
	if s.DecimalsB != nil {
		inst.LegB.Decimals = *s.DecimalsB
	}

	fields := []struct {
		name     string
		raw      string
		target   *common.Address
		optional bool
	}{
		{"token_a", s.TokenA, &inst.LegA.Token, false},
		{"token_b", s.TokenB, &inst.LegB.Token, false},
		{"provider_a", s.ProviderA, &inst.LegA.Provider, false},
		{"provider_b", s.ProviderB, &inst.LegB.Provider, false},
		{"pair", s.Pair, &inst.Pair, false},
		{"router", s.Router, &inst.Router, false},
		{"masterchef", s.MasterChef, &inst.MasterChef, false},
		{"reward", s.Reward, &inst.Reward, false},
		{"base_asset", s.BaseAsset, &inst.BaseAsset, false},
		{"hedger", s.Hedger, &inst.Hedger, true},
		{"self", s.Self, &inst.Self, false},
	}
	for _, f := range fields {
		if f.raw == "" && f.optional {
			continue
		}
		if !common.IsHexAddress(f.raw) {
			return types.Instance{}, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, f.name, f.raw)
		}
		*f.target = common.HexToAddress(f.raw)
	}
	return inst, nil
}

// Parameters applies the overrides on top of DefaultJointParameters.
func (s InstanceSpec) Parameters() (types.Parameters, error) {
	p := DefaultJointParameters
	if s.Params.HedgeBudgetBps != nil {
		p.HedgeBudgetBps = *s.Params.HedgeBudgetBps
	}
	if s.Params.HedgeMoneynessBps != nil {
		p.HedgeMoneynessBps = *s.Params.HedgeMoneynessBps
	}
	if s.Params.HedgePeriod != "" {
		d, err := time.ParseDuration(s.Params.HedgePeriod)
		if err != nil {
			return types.Parameters{}, errors.Join(types.ErrInvalidParameter, err)
		}
		p.HedgePeriod = d
	}
	if s.Params.MinTimeToMaturity != "" {
		d, err := time.ParseDuration(s.Params.MinTimeToMaturity)
		if err != nil {
			return types.Parameters{}, errors.Join(types.ErrInvalidParameter, err)
		}
		p.MinTimeToMaturity = d
	}
	if err := p.Validate(); err != nil {
		return types.Parameters{}, err
	}
	return p, nil
}

// Amounts parses the paper seed amounts in the order reserveA, reserveB, rewardReserve, fundA, fundB.
// Empty values are zero.
func (p PaperSeed) Amounts() ([5]sdkmath.Int, error) {
	var out [5]sdkmath.Int
	for i, raw := range []string{p.ReserveA, p.ReserveB, p.RewardReserve, p.FundA, p.FundB} {
		if raw == "" {
			out[i] = sdkmath.ZeroInt()
			continue
		}
		v, ok := sdkmath.NewIntFromString(raw)
		if !ok || v.IsNegative() {
			return out, fmt.Errorf("%w: %q", ErrInvalidPaperSeed, raw)
		}
		out[i] = v
	}
	return out, nil
}
