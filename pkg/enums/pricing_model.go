package enums

import "fmt"

// PricingModel maps to the pricing_model enum in Postgres.
type PricingModel string

const (
	PricingModelFixed      PricingModel = "fixed"
	PricingModelHourly     PricingModel = "hourly"
	PricingModelQuoteBased PricingModel = "quote_based"
)

var validPricingModels = []PricingModel{
	PricingModelFixed,
	PricingModelHourly,
	PricingModelQuoteBased,
}

func (p PricingModel) IsValid() bool {
	for _, candidate := range validPricingModels {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresPrice reports whether offerings under this model must list a price.
func (p PricingModel) RequiresPrice() bool {
	return p != PricingModelQuoteBased
}

// ParsePricingModel converts raw input into PricingModel.
func ParsePricingModel(value string) (PricingModel, error) {
	for _, candidate := range validPricingModels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pricing model %q", value)
}
