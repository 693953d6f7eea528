package access

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	governance map[common.Address]common.Address
	strategist map[common.Address]common.Address
	err        error
}

func (f *fakeResolver) Governance(_ context.Context, p common.Address) (common.Address, error) {
	return f.governance[p], f.err
}

func (f *fakeResolver) Strategist(_ context.Context, p common.Address) (common.Address, error) {
	return f.strategist[p], f.err
}

func (f *fakeResolver) Want(_ context.Context, _ common.Address) (common.Address, error) {
	return common.Address{}, f.err
}

var (
	providerA   = common.HexToAddress("0xa1")
	providerB   = common.HexToAddress("0xb1")
	governanceA = common.HexToAddress("0xa2")
	governanceB = common.HexToAddress("0xb2")
	strategistA = common.HexToAddress("0xa3")
	stranger    = common.HexToAddress("0xff")
)

func newControl() (*Control, *fakeResolver) {
	r := &fakeResolver{
		governance: map[common.Address]common.Address{providerA: governanceA, providerB: governanceB},
		strategist: map[common.Address]common.Address{providerA: strategistA},
	}
	return NewControl(r, providerA, providerB), r
}

func TestRequire(t *testing.T) {
	c, _ := newControl()
	ctx := context.Background()

	tests := []struct {
		name    string
		role    Role
		caller  common.Address
		allowed bool
	}{
		{"provider A invests", RoleProvider, providerA, true},
		{"provider B invests", RoleProvider, providerB, true},
		{"governance cannot invest", RoleProvider, governanceA, false},
		{"governance is authorized", RoleAuthorized, governanceB, true},
		{"strategist is authorized", RoleAuthorized, strategistA, true},
		{"provider is not authorized", RoleAuthorized, providerA, false},
		{"governance is governance", RoleGovernance, governanceA, true},
		{"strategist is not governance", RoleGovernance, strategistA, false},
		{"stranger", RoleGovernance, stranger, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Require(ctx, tt.role, tt.caller)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnauthorized)
			}
		})
	}
}

func TestRequire_EmptyCaller(t *testing.T) {
	c, _ := newControl()
	assert.ErrorIs(t, c.OnlyProviders(common.Address{}), ErrNoCaller)
}

func TestRequire_ResolverFailure(t *testing.T) {
	c, r := newControl()
	r.err = errors.New("rpc down")

	err := c.OnlyGovernance(context.Background(), governanceA)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestSetProviders(t *testing.T) {
	c, _ := newControl()
	replacement := common.HexToAddress("0xc1")
	c.SetProviders(replacement, providerB)

	assert.NoError(t, c.OnlyProviders(replacement))
	assert.ErrorIs(t, c.OnlyProviders(providerA), ErrUnauthorized)
}
