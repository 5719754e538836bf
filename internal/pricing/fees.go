package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// currencyPlaces is the precision every computed amount is rounded to.
const currencyPlaces = 2

var (
	// BookingFee is the flat platform fee per booking, split evenly between both parties.
	BookingFee = decimal.RequireFromString("2.50")
	// CustomerBookingFee is the customer's half of BookingFee.
	CustomerBookingFee = decimal.RequireFromString("1.25")
	// ProviderBookingFee is the provider's half of BookingFee.
	ProviderBookingFee = decimal.RequireFromString("1.25")
	// DepositRate is the share of the total paid upfront to confirm a booking.
	DepositRate = decimal.RequireFromString("0.20")
)

var hundred = decimal.NewFromInt(100)

// FeeCalculation is the full money breakdown of a quoted booking.
type FeeCalculation struct {
	ServicePrice          decimal.Decimal `json:"service_price"`
	BookingFee            decimal.Decimal `json:"booking_fee"`
	CustomerBookingFee    decimal.Decimal `json:"customer_booking_fee"`
	ProviderBookingFee    decimal.Decimal `json:"provider_booking_fee"`
	TransactionFeePercent decimal.Decimal `json:"transaction_fee_percent"`
	TransactionFeeAmount  decimal.Decimal `json:"transaction_fee_amount"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	DepositAmount         decimal.Decimal `json:"deposit_amount"`
	ProviderNetAmount     decimal.Decimal `json:"provider_net_amount"`
}

// RemainingBalance is what the customer still owes after the deposit.
func (f FeeCalculation) RemainingBalance() decimal.Decimal {
	return CalculateRemainingBalance(f.TotalAmount, f.DepositAmount)
}

// PlatformRevenue is the platform's take: the transaction fee plus the full booking fee.
func (f FeeCalculation) PlatformRevenue() decimal.Decimal {
	return f.TransactionFeeAmount.Add(f.BookingFee)
}

// CalculateBookingFees computes the money breakdown for a price under the
// provider's tier. Amounts are rounded to cents and providerNet is derived
// from the rounded fee, so it can go negative for very small prices.
func CalculateBookingFees(servicePrice decimal.Decimal, tier enums.SubscriptionTier) (FeeCalculation, error) {
	if servicePrice.IsNegative() {
		return FeeCalculation{}, fmt.Errorf("service price must not be negative")
	}
	percent, err := TransactionFeePercent(tier)
	if err != nil {
		return FeeCalculation{}, err
	}

	price := servicePrice.Round(currencyPlaces)
	feeAmount := price.Mul(percent).Div(hundred).Round(currencyPlaces)
	total := price.Add(CustomerBookingFee)
	deposit := CalculateDeposit(total)

	return FeeCalculation{
		ServicePrice:          price,
		BookingFee:            BookingFee,
		CustomerBookingFee:    CustomerBookingFee,
		ProviderBookingFee:    ProviderBookingFee,
		TransactionFeePercent: percent,
		TransactionFeeAmount:  feeAmount,
		TotalAmount:           total,
		DepositAmount:         deposit,
		ProviderNetAmount:     price.Sub(feeAmount).Sub(ProviderBookingFee),
	}, nil
}

// CalculatePlatformRevenue returns the platform's revenue for a price under a tier.
func CalculatePlatformRevenue(servicePrice decimal.Decimal, tier enums.SubscriptionTier) (decimal.Decimal, error) {
	fees, err := CalculateBookingFees(servicePrice, tier)
	if err != nil {
		return decimal.Zero, err
	}
	return fees.PlatformRevenue(), nil
}

// CalculateDeposit returns the upfront share of a total.
func CalculateDeposit(totalAmount decimal.Decimal) decimal.Decimal {
	return totalAmount.Mul(DepositRate).Round(currencyPlaces)
}

// CalculateRemainingBalance returns total minus deposit.
func CalculateRemainingBalance(totalAmount, depositAmount decimal.Decimal) decimal.Decimal {
	return totalAmount.Sub(depositAmount)
}

// ProviderPayout is the ledger view of what the provider is owed on completion.
type ProviderPayout struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}

// CalculateProviderPayout derives the payout from the stored fee fields of a booking.
func CalculateProviderPayout(servicePrice, transactionFee, bookingFee decimal.Decimal) ProviderPayout {
	providerShare := bookingFee.Div(decimal.NewFromInt(2)).Round(currencyPlaces)
	fee := transactionFee.Add(providerShare)
	return ProviderPayout{
		Gross: servicePrice,
		Fee:   fee,
		Net:   servicePrice.Sub(fee),
	}
}

// CalculateTransactionFee applies a tier's percentage to an arbitrary amount.
func CalculateTransactionFee(amount decimal.Decimal, tier enums.SubscriptionTier) (decimal.Decimal, error) {
	percent, err := TransactionFeePercent(tier)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(percent).Div(hundred).Round(currencyPlaces), nil
}
