package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func TestCalculateBookingFeesFreeTierScenario(t *testing.T) {
	fees, err := CalculateBookingFees(dec(t, "100"), enums.SubscriptionTierFree)
	require.NoError(t, err)

	assert.True(t, fees.TransactionFeePercent.Equal(dec(t, "7")))
	assert.Equal(t, "7.00", fees.TransactionFeeAmount.StringFixed(2))
	assert.Equal(t, "101.25", fees.TotalAmount.StringFixed(2))
	assert.Equal(t, "20.25", fees.DepositAmount.StringFixed(2))
	assert.Equal(t, "91.75", fees.ProviderNetAmount.StringFixed(2))
	assert.Equal(t, "2.50", fees.BookingFee.StringFixed(2))
	assert.Equal(t, "81.00", fees.RemainingBalance().StringFixed(2))
	assert.Equal(t, "9.50", fees.PlatformRevenue().StringFixed(2))
}

func TestCalculateBookingFeesPerTier(t *testing.T) {
	tests := []struct {
		tier    enums.SubscriptionTier
		price   string
		fee     string
		net     string
		deposit string
	}{
		{tier: enums.SubscriptionTierFree, price: "250", fee: "17.50", net: "231.25", deposit: "50.25"},
		{tier: enums.SubscriptionTierBasic, price: "250", fee: "12.50", net: "236.25", deposit: "50.25"},
		{tier: enums.SubscriptionTierPro, price: "250", fee: "7.50", net: "241.25", deposit: "50.25"},
		{tier: enums.SubscriptionTierBasic, price: "80", fee: "4.00", net: "74.75", deposit: "16.25"},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+"_"+tt.price, func(t *testing.T) {
			fees, err := CalculateBookingFees(dec(t, tt.price), tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.fee, fees.TransactionFeeAmount.StringFixed(2))
			assert.Equal(t, tt.net, fees.ProviderNetAmount.StringFixed(2))
			assert.Equal(t, tt.deposit, fees.DepositAmount.StringFixed(2))
		})
	}
}

func TestCalculateBookingFeesInvariantsAcrossPrices(t *testing.T) {
	prices := []string{"0", "0.01", "1", "9.99", "10", "33.33", "100", "1234.56", "99999.99"}
	for _, tier := range enums.SubscriptionTiers() {
		for _, raw := range prices {
			price := dec(t, raw)
			fees, err := CalculateBookingFees(price, tier)
			require.NoError(t, err)

			assert.True(t, fees.TotalAmount.Equal(price.Add(CustomerBookingFee)), "total for %s/%s", tier, raw)
			assert.True(t, fees.DepositAmount.Equal(fees.TotalAmount.Mul(DepositRate).Round(2)), "deposit for %s/%s", tier, raw)

			expectedFee := price.Mul(fees.TransactionFeePercent).Div(decimal.NewFromInt(100)).Round(2)
			assert.True(t, fees.TransactionFeeAmount.Equal(expectedFee), "fee for %s/%s", tier, raw)
			assert.True(t, fees.ProviderNetAmount.Equal(price.Sub(expectedFee).Sub(ProviderBookingFee)), "net for %s/%s", tier, raw)
		}
	}
}

func TestCalculateBookingFeesDoesNotClampNegativeNet(t *testing.T) {
	fees, err := CalculateBookingFees(dec(t, "1"), enums.SubscriptionTierFree)
	require.NoError(t, err)
	assert.Equal(t, "-0.32", fees.ProviderNetAmount.StringFixed(2))

	zero, err := CalculateBookingFees(decimal.Zero, enums.SubscriptionTierPro)
	require.NoError(t, err)
	assert.Equal(t, "-1.25", zero.ProviderNetAmount.StringFixed(2))
	assert.Equal(t, "0.25", zero.DepositAmount.StringFixed(2))
}

func TestCalculateBookingFeesRejectsBadInput(t *testing.T) {
	_, err := CalculateBookingFees(dec(t, "-5"), enums.SubscriptionTierFree)
	require.Error(t, err)

	_, err = CalculateBookingFees(dec(t, "5"), enums.SubscriptionTier("platinum"))
	require.Error(t, err)
}

func TestCalculateProviderPayout(t *testing.T) {
	payout := CalculateProviderPayout(dec(t, "100"), dec(t, "7"), BookingFee)
	assert.Equal(t, "100.00", payout.Gross.StringFixed(2))
	assert.Equal(t, "8.25", payout.Fee.StringFixed(2))
	assert.Equal(t, "91.75", payout.Net.StringFixed(2))
}

func TestCalculateTransactionFeeAndRevenue(t *testing.T) {
	fee, err := CalculateTransactionFee(dec(t, "200"), enums.SubscriptionTierBasic)
	require.NoError(t, err)
	assert.Equal(t, "10.00", fee.StringFixed(2))

	revenue, err := CalculatePlatformRevenue(dec(t, "200"), enums.SubscriptionTierPro)
	require.NoError(t, err)
	assert.Equal(t, "8.50", revenue.StringFixed(2))

	assert.Equal(t, "40.00", CalculateRemainingBalance(dec(t, "50"), dec(t, "10")).StringFixed(2))
}
