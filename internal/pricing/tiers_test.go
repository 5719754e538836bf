package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

func TestTierTable(t *testing.T) {
	free, err := Tier(enums.SubscriptionTierFree)
	require.NoError(t, err)
	limit, ok := free.HasBookingLimit()
	assert.True(t, ok)
	assert.Equal(t, 3, limit)
	leads, ok := free.HasLeadLimit()
	assert.True(t, ok)
	assert.Equal(t, 5, leads)
	assert.True(t, free.MonthlyPrice.IsZero())

	basic, err := Tier(enums.SubscriptionTierBasic)
	require.NoError(t, err)
	limit, _ = basic.HasBookingLimit()
	assert.Equal(t, 15, limit)
	assert.Equal(t, "29", basic.MonthlyPrice.String())

	pro, err := Tier(enums.SubscriptionTierPro)
	require.NoError(t, err)
	_, ok = pro.HasBookingLimit()
	assert.False(t, ok)
	_, ok = pro.HasLeadLimit()
	assert.False(t, ok)
	assert.Len(t, pro.Features, 9)
}

func TestTierLookupsReturnCopies(t *testing.T) {
	first := TierOrFree(enums.SubscriptionTierFree)
	first.Features[0] = "mutated"
	*first.BookingLimit = 999

	second := TierOrFree(enums.SubscriptionTierFree)
	assert.Equal(t, "Up to 3 bookings per month", second.Features[0])
	assert.Equal(t, 3, *second.BookingLimit)
}

func TestTierOrFreeFallsBack(t *testing.T) {
	info := TierOrFree("")
	assert.Equal(t, enums.SubscriptionTierFree, info.Tier)

	_, err := Tier("enterprise")
	assert.Error(t, err)
}

func TestTiersOrdered(t *testing.T) {
	tiers := Tiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, enums.SubscriptionTierFree, tiers[0].Tier)
	assert.Equal(t, enums.SubscriptionTierBasic, tiers[1].Tier)
	assert.Equal(t, enums.SubscriptionTierPro, tiers[2].Tier)

	pct, err := TransactionFeePercent(enums.SubscriptionTierPro)
	require.NoError(t, err)
	assert.Equal(t, "3", pct.String())
}
