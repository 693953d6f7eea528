package adapters

import (
	"fmt"
	"sort"
	"strings"
)

type variant struct {
	name    string
	pending string
}

func (v variant) Name() string          { return v.name }
func (v variant) PendingMethod() string { return v.pending }

var variants = map[string]variant{
	"spookyswap": {name: "SpookySwap", pending: "pendingBOO"},
	"spiritswap": {name: "SpiritSwap", pending: "pendingSpirit"},
	"sushiswap":  {name: "SushiSwap", pending: "pendingSushi"},
}

// LookupVariant returns the reward variant registered under key (case-insensitive).
func LookupVariant(key string) (RewardVariant, error) {
	v, ok := variants[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownVariant, key, strings.Join(VariantKeys(), ", "))
	}
	return v, nil
}

// VariantKeys lists the registered variant keys in sorted order.
func VariantKeys() []string {
	keys := make([]string, 0, len(variants))
	for k := range variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
