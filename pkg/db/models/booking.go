package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Booking is an engagement between a customer (a user) and a provider profile.
// Rows are never deleted; the status column carries the lifecycle.
type Booking struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID            uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	ProviderID            uuid.UUID           `gorm:"column:provider_id;type:uuid;not null;index" json:"provider_id"`
	ServiceOfferingID     *uuid.UUID          `gorm:"column:service_offering_id;type:uuid" json:"service_offering_id"`
	ServiceTitle          string              `gorm:"column:service_title;not null" json:"service_title"`
	Description           *string             `gorm:"column:description" json:"description"`
	ScheduledDate         *time.Time          `gorm:"column:scheduled_date" json:"scheduled_date"`
	ScheduledTime         *string             `gorm:"column:scheduled_time" json:"scheduled_time"`
	Location              *string             `gorm:"column:location" json:"location"`
	Notes                 *string             `gorm:"column:notes" json:"notes"`
	ServicePrice          decimal.Decimal     `gorm:"column:service_price;type:numeric(12,2);not null;default:0" json:"service_price"`
	BookingFee            decimal.Decimal     `gorm:"column:booking_fee;type:numeric(12,2);not null;default:0" json:"booking_fee"`
	CustomerBookingFee    decimal.Decimal     `gorm:"column:customer_booking_fee;type:numeric(12,2);not null;default:0" json:"customer_booking_fee"`
	ProviderBookingFee    decimal.Decimal     `gorm:"column:provider_booking_fee;type:numeric(12,2);not null;default:0" json:"provider_booking_fee"`
	TransactionFeePercent decimal.Decimal     `gorm:"column:transaction_fee_percent;type:numeric(5,2);not null;default:0" json:"transaction_fee_percent"`
	TransactionFeeAmount  decimal.Decimal     `gorm:"column:transaction_fee_amount;type:numeric(12,2);not null;default:0" json:"transaction_fee_amount"`
	TotalAmount           decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null;default:0" json:"total_amount"`
	DepositAmount         decimal.Decimal     `gorm:"column:deposit_amount;type:numeric(12,2);not null;default:0" json:"deposit_amount"`
	ProviderNetAmount     decimal.Decimal     `gorm:"column:provider_net_amount;type:numeric(12,2);not null;default:0" json:"provider_net_amount"`
	Status                enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending'" json:"status"`
	ContactRevealed       bool                `gorm:"column:contact_revealed;not null;default:false" json:"contact_revealed"`
	ContactRevealedAt     *time.Time          `gorm:"column:contact_revealed_at" json:"contact_revealed_at"`
	CompletedAt           *time.Time          `gorm:"column:completed_at" json:"completed_at"`
	CancelledAt           *time.Time          `gorm:"column:cancelled_at" json:"cancelled_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// IsQuoted reports whether the provider has set a price.
func (b Booking) IsQuoted() bool {
	return b.ServicePrice.GreaterThan(decimal.Zero)
}
