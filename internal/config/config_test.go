package config

import (
	"os"
	"testing"
	"time"

	"github.com/elys-network/joint/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instancesYAML = `
instances:
  - id: wftm-usdc
    variant: spookyswap
    token_a: "0x21be370D5312f44cB42ce377BC9b8a0cEF1A4C83"
    token_b: "0x04068DA6C83AFCFA0e13ba15A6696662335D5B75"
    decimals_a: 18
    decimals_b: 6
    provider_a: "0x00000000000000000000000000000000000000a1"
    provider_b: "0x00000000000000000000000000000000000000b1"
    pair: "0x2b4C76d0dc16BE1C31D4C1DC53bF9B45987Fc75c"
    router: "0xF491e7B69E4244ad4002BC14e878a34207E38c29"
    masterchef: "0x2b2929E785374c651a81A63878Ab22742656DcDd"
    pool_id: 2
    reward: "0x841FAD6EAe12c286d1Fd18d1d525DFfA75C7EFFE"
    base_asset: "0x21be370D5312f44cB42ce377BC9b8a0cEF1A4C83"
    self: "0x00000000000000000000000000000000000000c1"
    params:
      hedge_budget_bps: 0
      hedge_period: 12h
`

func TestParseInstances(t *testing.T) {
	specs, err := ParseInstances([]byte(instancesYAML))
	require.NoError(t, err)
	require.Len(t, specs, 1)

	inst, err := specs[0].Instance()
	require.NoError(t, err)
	require.NoError(t, inst.Validate())
	assert.Equal(t, "wftm-usdc", inst.ID)
	assert.Equal(t, uint8(6), inst.LegB.Decimals)
	assert.Equal(t, uint32(30), inst.FeeBps)
	assert.Equal(t, common.Address{}, inst.Hedger)
	assert.Equal(t, inst.LegA.Token, inst.BaseAsset)

	params, err := specs[0].Parameters()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), params.HedgeBudgetBps)
	assert.Equal(t, DefaultJointParameters.HedgeMoneynessBps, params.HedgeMoneynessBps)
	assert.Equal(t, 12*time.Hour, params.HedgePeriod)
	assert.Equal(t, DefaultJointParameters.MinTimeToMaturity, params.MinTimeToMaturity)
}

func TestParseInstances_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"empty", "instances: []", ErrNoInstances},
		{"duplicate", "instances:\n  - id: a\n  - id: a\n", ErrDuplicateID},
		{"bad budget", "instances:\n  - id: a\n    params:\n      hedge_budget_bps: 20000\n", types.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInstances([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestInstanceSpec_InvalidAddress(t *testing.T) {
	_, err := InstanceSpec{ID: "x", TokenA: "not-an-address"}.Instance()
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestPaperSeedAmounts(t *testing.T) {
	amounts, err := PaperSeed{ReserveA: "1000", FundB: "5"}.Amounts()
	require.NoError(t, err)
	assert.Equal(t, "1000", amounts[0].String())
	assert.True(t, amounts[1].IsZero())
	assert.Equal(t, "5", amounts[4].String())

	_, err = PaperSeed{ReserveA: "-1"}.Amounts()
	assert.ErrorIs(t, err, ErrInvalidPaperSeed)
}

func TestParseAPIKeys(t *testing.T) {
	keys, err := ParseAPIKeys("alpha:0x00000000000000000000000000000000000000a1, beta:0x00000000000000000000000000000000000000b1")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Equal(t, common.HexToAddress("0xa1"), keys["alpha"])

	empty, err := ParseAPIKeys("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseAPIKeys("missing-address")
	assert.Error(t, err)
	_, err = ParseAPIKeys("tok:0xzz")
	assert.Error(t, err)
}

func TestLoadConfig_PaperDefaults(t *testing.T) {
	t.Setenv("JOINT_MODE", "")
	t.Setenv("INSTANCES_FILE", "instances.yaml")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("LOCK_TTL", "30s")

	require.NoError(t, LoadConfig())
	assert.Equal(t, ModePaper, Mode)
	assert.Equal(t, StoreBackendBadger, StoreBackend)
	assert.Equal(t, 30*time.Second, LockTTL)
}

func TestLoadConfig_LiveRequiresKey(t *testing.T) {
	t.Setenv("JOINT_MODE", ModeLive)
	t.Setenv("CHAIN_ID", "250")
	t.Setenv("INSTANCES_FILE", "instances.yaml")

	t.Setenv("KEEPER_PRIVATE_KEY", "")
	require.NoError(t, os.Unsetenv("KEEPER_PRIVATE_KEY"))

	assert.ErrorContains(t, LoadConfig(), "KEEPER_PRIVATE_KEY")
}

func TestLoadConfig_RejectsUnknownMode(t *testing.T) {
	t.Setenv("JOINT_MODE", "dry")
	assert.Error(t, LoadConfig())
}
