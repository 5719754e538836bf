package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// ServiceOffering is a priced service a provider lists on their profile.
type ServiceOffering struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderProfileID uuid.UUID          `gorm:"column:provider_profile_id;type:uuid;not null;index" json:"provider_profile_id"`
	Title             string             `gorm:"column:title;not null" json:"title"`
	Description       *string            `gorm:"column:description" json:"description"`
	Price             *decimal.Decimal   `gorm:"column:price;type:numeric(12,2)" json:"price"`
	PricingModel      enums.PricingModel `gorm:"column:pricing_model;type:pricing_model;not null;default:'fixed'" json:"pricing_model"`
	Unit              *string            `gorm:"column:unit" json:"unit"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
