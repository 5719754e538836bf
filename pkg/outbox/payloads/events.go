package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// BookingRequestedEvent is emitted when a customer asks a provider for a quote.
type BookingRequestedEvent struct {
	BookingID    uuid.UUID `json:"booking_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	ServiceTitle string    `json:"service_title"`
}

// BookingQuotedEvent carries the price breakdown a provider sent.
type BookingQuotedEvent struct {
	BookingID     uuid.UUID       `json:"booking_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	ProviderID    uuid.UUID       `json:"provider_id"`
	ServicePrice  decimal.Decimal `json:"service_price"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
}

// BookingStatusChangedEvent covers every lifecycle transition after quoting.
type BookingStatusChangedEvent struct {
	BookingID  uuid.UUID           `json:"booking_id"`
	CustomerID uuid.UUID           `json:"customer_id"`
	ProviderID uuid.UUID           `json:"provider_id"`
	From       enums.BookingStatus `json:"from"`
	To         enums.BookingStatus `json:"to"`
	Reason     string              `json:"reason,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// BookingConfirmedEvent is emitted once the deposit payment is verified.
type BookingConfirmedEvent struct {
	BookingID        uuid.UUID       `json:"booking_id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	ProviderID       uuid.UUID       `json:"provider_id"`
	PaymentReference string          `json:"payment_reference"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
	ContactRevealed  bool            `json:"contact_revealed"`
}

// LeadUnlockedEvent is emitted when a provider spends allowance on a job post.
type LeadUnlockedEvent struct {
	LeadID            uuid.UUID `json:"lead_id"`
	JobPostID         uuid.UUID `json:"job_post_id"`
	ProviderProfileID uuid.UUID `json:"provider_profile_id"`
	UnlockedAt        time.Time `json:"unlocked_at"`
}

// SubscriptionChangedEvent is emitted on upgrades, downgrades and period-end changes.
type SubscriptionChangedEvent struct {
	ProviderProfileID uuid.UUID              `json:"provider_profile_id"`
	From              enums.SubscriptionTier `json:"from"`
	To                enums.SubscriptionTier `json:"to"`
	CancelAtPeriodEnd bool                   `json:"cancel_at_period_end"`
	PeriodEnd         time.Time              `json:"period_end"`
}
