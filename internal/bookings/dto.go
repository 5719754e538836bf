package bookings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Actor is the authenticated caller acting on a booking.
type Actor struct {
	UserID uuid.UUID
	Email  string
}

// CreateBookingInput captures a customer's request for a quote.
type CreateBookingInput struct {
	ProviderID        uuid.UUID
	ServiceOfferingID *uuid.UUID
	ServiceTitle      string
	Description       *string
	ScheduledDate     *time.Time
	ScheduledTime     *string
	Location          *string
	Notes             *string
}

// QuoteInput is the provider's price for a pending booking.
type QuoteInput struct {
	ServicePrice decimal.Decimal
	Notes        *string
}

// ConfirmResult carries the hosted checkout for the deposit.
type ConfirmResult struct {
	Booking          *models.Booking `json:"booking"`
	AuthorizationURL string          `json:"authorization_url"`
	Reference        string          `json:"reference"`
}

// Role selects which side of the booking relationship to list.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// ListParams filters and pages a booking listing.
type ListParams struct {
	Role   Role
	Status *enums.BookingStatus
	Limit  int
	Cursor string
}

// ListResult wraps a page of bookings and the cursor for the next one.
type ListResult struct {
	Items  []models.Booking `json:"items"`
	Cursor string           `json:"cursor"`
}
