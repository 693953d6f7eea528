package access

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/elys-network/joint/internal/adapters"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnauthorized = errors.New("caller is not authorized")
	ErrNoCaller     = errors.New("caller identity is empty")
)

// Role is a permission level checked before an operation runs.
type Role string

const (
	// RoleProvider is held by the two capital providers.
	RoleProvider Role = "provider"
	// RoleAuthorized is held by either provider's governance or strategist.
	RoleAuthorized Role = "authorized"
	// RoleGovernance is held by either provider's governance.
	RoleGovernance Role = "governance"
)

// Control resolves roles against the current providers of one instance.
// Governance and strategist addresses are read from the providers on every check,
// so a change on the provider side takes effect immediately.
type Control struct {
	resolver adapters.Provider

	mu        sync.RWMutex
	providerA common.Address
	providerB common.Address
}

// NewControl creates the access control for an instance funded by providerA and providerB.
func NewControl(resolver adapters.Provider, providerA, providerB common.Address) *Control {
	return &Control{resolver: resolver, providerA: providerA, providerB: providerB}
}

// Providers returns the current provider addresses.
func (c *Control) Providers() (common.Address, common.Address) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providerA, c.providerB
}

// SetProviders replaces the provider addresses.
func (c *Control) SetProviders(providerA, providerB common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providerA, c.providerB = providerA, providerB
}

// Require checks that caller holds role.
func (c *Control) Require(ctx context.Context, role Role, caller common.Address) error {
	switch role {
	case RoleProvider:
		return c.OnlyProviders(caller)
	case RoleAuthorized:
		return c.OnlyAuthorized(ctx, caller)
	case RoleGovernance:
		return c.OnlyGovernance(ctx, caller)
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}

// OnlyProviders admits either capital provider.
func (c *Control) OnlyProviders(caller common.Address) error {
	if caller == (common.Address{}) {
		return ErrNoCaller
	}
	a, b := c.Providers()
	if caller == a || caller == b {
		return nil
	}
	return fmt.Errorf("%w: %s is not a provider", ErrUnauthorized, caller.Hex())
}

// OnlyGovernance admits the governance of either provider.
func (c *Control) OnlyGovernance(ctx context.Context, caller common.Address) error {
	if caller == (common.Address{}) {
		return ErrNoCaller
	}
	ok, err := c.matches(ctx, caller, c.resolver.Governance)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not governance", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// OnlyAuthorized admits governance or strategist of either provider.
func (c *Control) OnlyAuthorized(ctx context.Context, caller common.Address) error {
	if caller == (common.Address{}) {
		return ErrNoCaller
	}
	ok, err := c.matches(ctx, caller, c.resolver.Governance)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	ok, err = c.matches(ctx, caller, c.resolver.Strategist)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is neither governance nor strategist", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// GovernanceOf returns the governance address of provider A, the sweep destination.
func (c *Control) GovernanceOf(ctx context.Context, provider common.Address) (common.Address, error) {
	return c.resolver.Governance(ctx, provider)
}

func (c *Control) matches(ctx context.Context, caller common.Address, lookup func(context.Context, common.Address) (common.Address, error)) (bool, error) {
	a, b := c.Providers()
	for _, p := range []common.Address{a, b} {
		addr, err := lookup(ctx, p)
		if err != nil {
			return false, fmt.Errorf("failed to resolve role for provider %s: %w", p.Hex(), err)
		}
		if addr == caller {
			return true, nil
		}
	}
	return false, nil
}
