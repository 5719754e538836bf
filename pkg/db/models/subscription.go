package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Subscription tracks the billing period of a provider's plan.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderProfileID  uuid.UUID                `gorm:"column:provider_profile_id;type:uuid;not null;uniqueIndex" json:"provider_profile_id"`
	Tier               enums.SubscriptionTier   `gorm:"column:tier;type:subscription_tier;not null" json:"tier"`
	Status             enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'" json:"status"`
	CurrentPeriodStart time.Time                `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `gorm:"column:current_period_end;not null" json:"current_period_end"`
	CancelAtPeriodEnd  bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at" json:"cancelled_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
