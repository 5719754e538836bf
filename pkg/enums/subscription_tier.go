package enums

import (
	"fmt"
	"strings"
)

// SubscriptionTier maps to the subscription_tier enum in Postgres.
type SubscriptionTier string

const (
	SubscriptionTierFree  SubscriptionTier = "free"
	SubscriptionTierBasic SubscriptionTier = "basic"
	SubscriptionTierPro   SubscriptionTier = "pro"
)

// validSubscriptionTiers is ordered from lowest to highest plan.
var validSubscriptionTiers = []SubscriptionTier{
	SubscriptionTierFree,
	SubscriptionTierBasic,
	SubscriptionTierPro,
}

// SubscriptionTiers returns every tier from lowest to highest.
func SubscriptionTiers() []SubscriptionTier {
	out := make([]SubscriptionTier, len(validSubscriptionTiers))
	copy(out, validSubscriptionTiers)
	return out
}

// IsValid reports whether the value matches the canonical subscription tier enum.
func (t SubscriptionTier) IsValid() bool {
	return t.Rank() >= 0
}

// Rank orders tiers for upgrade/downgrade comparisons; -1 for unknown values.
func (t SubscriptionTier) Rank() int {
	for i, candidate := range validSubscriptionTiers {
		if candidate == t {
			return i
		}
	}
	return -1
}

// ParseSubscriptionTier converts raw input into SubscriptionTier. Matching is case-insensitive.
func ParseSubscriptionTier(value string) (SubscriptionTier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSubscriptionTiers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription tier %q", value)
}
