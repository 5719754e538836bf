package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// ProviderProfile is the provider side of an account along with its plan usage counters.
type ProviderProfile struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID                uuid.UUID              `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	BusinessName          string                 `gorm:"column:business_name;not null" json:"business_name"`
	Bio                   *string                `gorm:"column:bio" json:"bio"`
	Location              *string                `gorm:"column:location" json:"location"`
	ServiceAreas          pq.StringArray         `gorm:"column:service_areas;type:text[];default:ARRAY[]::text[]" json:"service_areas"`
	ContactEmail          *string                `gorm:"column:contact_email" json:"-"`
	ContactPhone          *string                `gorm:"column:contact_phone" json:"-"`
	AutoRevealContact     bool                   `gorm:"column:auto_reveal_contact;not null" json:"auto_reveal_contact"`
	SubscriptionTier      enums.SubscriptionTier `gorm:"column:subscription_tier;type:subscription_tier;not null;default:'free'" json:"subscription_tier"`
	MonthlyBookingCount   int                    `gorm:"column:monthly_booking_count;not null;default:0" json:"monthly_booking_count"`
	UsageWindowStart      time.Time              `gorm:"column:usage_window_start;not null" json:"usage_window_start"`
	BookingCountResetDate time.Time              `gorm:"column:booking_count_reset_date;not null" json:"booking_count_reset_date"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ProviderProfile) TableName() string { return "provider_profiles" }
