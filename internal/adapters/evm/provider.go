package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

func (a *Adapter) providerAddress(ctx context.Context, provider common.Address, method string) (common.Address, error) {
	out, err := a.view(ctx, providerABI, provider, method)
	if err != nil {
		return common.Address{}, err
	}
	return addressAt(out, 0)
}

// Governance is the governance of the vault the provider strategy belongs to.
func (a *Adapter) Governance(ctx context.Context, provider common.Address) (common.Address, error) {
	vault, err := a.providerAddress(ctx, provider, "vault")
	if err != nil {
		return common.Address{}, err
	}
	out, err := a.view(ctx, vaultABI, vault, "governance")
	if err != nil {
		return common.Address{}, err
	}
	return addressAt(out, 0)
}

func (a *Adapter) Strategist(ctx context.Context, provider common.Address) (common.Address, error) {
	return a.providerAddress(ctx, provider, "strategist")
}

func (a *Adapter) Want(ctx context.Context, provider common.Address) (common.Address, error) {
	return a.providerAddress(ctx, provider, "want")
}
