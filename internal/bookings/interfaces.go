package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/ledger"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
	"github.com/servicelink/servicelink-backend/pkg/paystack"
)

// Repository defines persistence operations for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, filters ListFilters) ([]models.Booking, *pagination.Cursor, error)
	ListByProviderStatus(ctx context.Context, providerProfileID uuid.UUID, statuses []enums.BookingStatus) ([]models.Booking, error)
	CountByProviderStatus(ctx context.Context, providerProfileID uuid.UUID, status enums.BookingStatus) (int64, error)
	HasBookingBetweenUsers(ctx context.Context, userA, userB uuid.UUID, statuses []enums.BookingStatus) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type profileFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error)
}

type offeringFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceOffering, error)
}

// BookingGate is the slice of the subscription gate a booking request needs.
type BookingGate interface {
	CheckBookingLimit(ctx context.Context, providerProfileID uuid.UUID) (bool, error)
	IncrementBookingCount(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID) error
}

type transactionRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordInput) (*models.Transaction, error)
	HasCompleted(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, txnType enums.TransactionType) (bool, error)
}

// PaymentInitializer opens a hosted checkout for the deposit.
type PaymentInitializer interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.Initialization, error)
}

type transitionObserver interface {
	ObserveTransition(from, to string)
}

// ListFilters narrows a booking listing to one side of the relationship.
type ListFilters struct {
	CustomerID *uuid.UUID
	ProviderID *uuid.UUID
	Status     *enums.BookingStatus
	Since      *time.Time
	Limit      int
	Cursor     *pagination.Cursor
}
