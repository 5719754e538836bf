package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// TierInfo describes what a subscription tier costs and allows. A nil limit means unlimited.
type TierInfo struct {
	Tier                  enums.SubscriptionTier `json:"tier"`
	Name                  string                 `json:"name"`
	MonthlyPrice          decimal.Decimal        `json:"monthly_price"`
	TransactionFeePercent decimal.Decimal        `json:"transaction_fee_percent"`
	BookingLimit          *int                   `json:"booking_limit,omitempty"`
	LeadLimit             *int                   `json:"lead_limit,omitempty"`
	Features              []string               `json:"features"`
}

// HasBookingLimit reports the monthly booking cap, if any.
func (t TierInfo) HasBookingLimit() (int, bool) {
	if t.BookingLimit == nil {
		return 0, false
	}
	return *t.BookingLimit, true
}

// HasLeadLimit reports the monthly lead cap, if any.
func (t TierInfo) HasLeadLimit() (int, bool) {
	if t.LeadLimit == nil {
		return 0, false
	}
	return *t.LeadLimit, true
}

func (t TierInfo) clone() TierInfo {
	out := t
	out.Features = append([]string(nil), t.Features...)
	if t.BookingLimit != nil {
		out.BookingLimit = intPtr(*t.BookingLimit)
	}
	if t.LeadLimit != nil {
		out.LeadLimit = intPtr(*t.LeadLimit)
	}
	return out
}

// tierTable is built once and never mutated; lookups hand out copies.
var tierTable = map[enums.SubscriptionTier]TierInfo{
	enums.SubscriptionTierFree: {
		Tier:                  enums.SubscriptionTierFree,
		Name:                  "Free",
		MonthlyPrice:          decimal.Zero,
		TransactionFeePercent: decimal.NewFromInt(7),
		BookingLimit:          intPtr(3),
		LeadLimit:             intPtr(5),
		Features: []string{
			"Up to 3 bookings per month",
			"Up to 5 leads per month",
			"7% transaction fee",
			"Basic profile listing",
			"In-app messaging",
			"Customer reviews",
		},
	},
	enums.SubscriptionTierBasic: {
		Tier:                  enums.SubscriptionTierBasic,
		Name:                  "Basic",
		MonthlyPrice:          decimal.NewFromInt(29),
		TransactionFeePercent: decimal.NewFromInt(5),
		BookingLimit:          intPtr(15),
		LeadLimit:             intPtr(30),
		Features: []string{
			"Up to 15 bookings per month",
			"Up to 30 leads per month",
			"5% transaction fee",
			"Enhanced profile listing",
			"In-app messaging",
			"Customer reviews",
			"Priority support",
		},
	},
	enums.SubscriptionTierPro: {
		Tier:                  enums.SubscriptionTierPro,
		Name:                  "Pro",
		MonthlyPrice:          decimal.NewFromInt(79),
		TransactionFeePercent: decimal.NewFromInt(3),
		Features: []string{
			"Unlimited bookings",
			"Unlimited leads",
			"3% transaction fee",
			"Featured profile listing",
			"In-app messaging",
			"Customer reviews",
			"Priority support",
			"Advanced analytics",
			"Promotional tools",
		},
	},
}

// Tier returns the policy for the given tier.
func Tier(tier enums.SubscriptionTier) (TierInfo, error) {
	info, ok := tierTable[tier]
	if !ok {
		return TierInfo{}, fmt.Errorf("unknown subscription tier %q", tier)
	}
	return info.clone(), nil
}

// TierOrFree falls back to the free tier for unknown or empty values, matching
// how providers without an explicit plan are billed.
func TierOrFree(tier enums.SubscriptionTier) TierInfo {
	if info, err := Tier(tier); err == nil {
		return info
	}
	return tierTable[enums.SubscriptionTierFree].clone()
}

// Tiers lists every tier from lowest to highest.
func Tiers() []TierInfo {
	ordered := enums.SubscriptionTiers()
	out := make([]TierInfo, 0, len(ordered))
	for _, tier := range ordered {
		out = append(out, tierTable[tier].clone())
	}
	return out
}

// TransactionFeePercent returns the platform's cut for the tier.
func TransactionFeePercent(tier enums.SubscriptionTier) (decimal.Decimal, error) {
	info, err := Tier(tier)
	if err != nil {
		return decimal.Zero, err
	}
	return info.TransactionFeePercent, nil
}

func intPtr(v int) *int { return &v }
