package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/pricing"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
	"github.com/servicelink/servicelink-backend/pkg/paystack"
)

// Service runs the booking lifecycle from request to completion.
type Service interface {
	CreateBookingRequest(ctx context.Context, customerID uuid.UUID, input CreateBookingInput) (*models.Booking, error)
	SendQuote(ctx context.Context, providerUserID, bookingID uuid.UUID, input QuoteInput) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*ConfirmResult, error)
	StartBooking(ctx context.Context, actorID, bookingID uuid.UUID) (*models.Booking, error)
	CompleteBooking(ctx context.Context, actorID, bookingID uuid.UUID) (*models.Booking, error)
	CancelBooking(ctx context.Context, actorID, bookingID uuid.UUID, reason string) (*models.Booking, error)
	InitiateDispute(ctx context.Context, actorID, bookingID uuid.UUID, reason string) (*models.Booking, error)
	GetBooking(ctx context.Context, viewerID, bookingID uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error)
}

// ServiceParams groups dependencies for the booking service.
type ServiceParams struct {
	Repo              Repository
	Profiles          profileFinder
	Offerings         offeringFinder
	Gate              BookingGate
	Ledger            transactionRecorder
	Payments          PaymentInitializer
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Metrics           transitionObserver
	Logger            *logger.Logger
	Currency          string
	CallbackURL       string
	MinimumQuote      decimal.Decimal
	Clock             func() time.Time
}

type service struct {
	repo         Repository
	profiles     profileFinder
	offerings    offeringFinder
	gate         BookingGate
	ledger       transactionRecorder
	payments     PaymentInitializer
	outbox       outbox.Emitter
	tx           txRunner
	metrics      transitionObserver
	logg         *logger.Logger
	currency     string
	callbackURL  string
	minimumQuote decimal.Decimal
	now          func() time.Time
}

// NewService validates and wires the booking service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("provider repository required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("subscription gate required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment initializer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	minimum := params.MinimumQuote
	if !minimum.IsPositive() {
		minimum = decimal.RequireFromString("0.01")
	}
	return &service{
		repo:         params.Repo,
		profiles:     params.Profiles,
		offerings:    params.Offerings,
		gate:         params.Gate,
		ledger:       params.Ledger,
		payments:     params.Payments,
		outbox:       params.Outbox,
		tx:           params.TransactionRunner,
		metrics:      params.Metrics,
		logg:         params.Logger,
		currency:     params.Currency,
		callbackURL:  params.CallbackURL,
		minimumQuote: minimum,
		now:          func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) CreateBookingRequest(ctx context.Context, customerID uuid.UUID, input CreateBookingInput) (*models.Booking, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	title := strings.TrimSpace(input.ServiceTitle)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service title is required")
	}

	profile, err := s.profiles.FindByID(ctx, input.ProviderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	if profile.UserID == customerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "providers cannot book themselves")
	}

	if err := s.checkOffering(ctx, input.ServiceOfferingID, profile.ID); err != nil {
		return nil, err
	}

	allowed, err := s.gate.CheckBookingLimit(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, pkgerrors.New(pkgerrors.CodeLimitExceeded, "provider has reached their monthly booking limit").
			WithDetails(map[string]any{"tier": profile.SubscriptionTier})
	}

	now := s.now()
	booking := &models.Booking{
		ID:                uuid.New(),
		CustomerID:        customerID,
		ProviderID:        profile.ID,
		ServiceOfferingID: input.ServiceOfferingID,
		ServiceTitle:      title,
		Description:       input.Description,
		ScheduledDate:     input.ScheduledDate,
		ScheduledTime:     input.ScheduledTime,
		Location:          input.Location,
		Notes:             input.Notes,
		ServicePrice:      decimal.Zero,
		Status:            enums.BookingStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, booking); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}
		if err := s.gate.IncrementBookingCount(ctx, tx, profile.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingRequested,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         &outbox.ActorRef{UserID: customerID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.BookingRequestedEvent{
				BookingID:    booking.ID,
				CustomerID:   customerID,
				ProviderID:   profile.ID,
				ServiceTitle: title,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"booking_id":  booking.ID.String(),
		"provider_id": profile.ID.String(),
	}), "booking requested")
	return booking, nil
}

// SendQuote may be repeated while the booking is pending; each call replaces
// the price and every derived fee.
func (s *service) SendQuote(ctx context.Context, providerUserID, bookingID uuid.UUID, input QuoteInput) (*models.Booking, error) {
	if input.ServicePrice.LessThan(s.minimumQuote) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quote must be at least %s", s.minimumQuote.StringFixed(2))
	}
	booking, profile, role, err := s.loadForActor(ctx, providerUserID, bookingID)
	if err != nil {
		return nil, err
	}
	if role != RoleProvider {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the provider can quote this booking")
	}

	fees, err := pricing.CalculateBookingFees(input.ServicePrice, profile.SubscriptionTier)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "calculate fees")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock booking")
		}
		if locked.Status != enums.BookingStatusPending {
			return invalidState("quote", locked.Status)
		}

		updates := map[string]any{
			"service_price":           fees.ServicePrice,
			"booking_fee":             fees.BookingFee,
			"customer_booking_fee":    fees.CustomerBookingFee,
			"provider_booking_fee":    fees.ProviderBookingFee,
			"transaction_fee_percent": fees.TransactionFeePercent,
			"transaction_fee_amount":  fees.TransactionFeeAmount,
			"total_amount":            fees.TotalAmount,
			"deposit_amount":          fees.DepositAmount,
			"provider_net_amount":     fees.ProviderNetAmount,
			"updated_at":              s.now(),
		}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
		}
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking quote")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingQuoted,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         &outbox.ActorRef{UserID: providerUserID, Role: string(enums.UserRoleProvider)},
			Data: payloads.BookingQuotedEvent{
				BookingID:     booking.ID,
				CustomerID:    booking.CustomerID,
				ProviderID:    booking.ProviderID,
				ServicePrice:  fees.ServicePrice,
				TotalAmount:   fees.TotalAmount,
				DepositAmount: fees.DepositAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, booking.ID)
}

// ConfirmBooking opens the deposit checkout. The status only moves to
// confirmed once the payment is verified.
func (s *service) ConfirmBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*ConfirmResult, error) {
	booking, _, role, err := s.loadForActor(ctx, actor.UserID, bookingID)
	if err != nil {
		return nil, err
	}
	if role != RoleCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the customer can confirm this booking")
	}
	if booking.Status != enums.BookingStatusPending {
		return nil, invalidState("confirm", booking.Status)
	}
	if !booking.IsQuoted() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking has not been quoted yet")
	}

	reference := "SL-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	checkout, err := s.payments.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       actor.Email,
		Amount:      booking.DepositAmount,
		Currency:    s.currency,
		Reference:   reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"booking_id":  booking.ID.String(),
			"customer_id": booking.CustomerID.String(),
			"type":        string(enums.TransactionTypeDeposit),
		},
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initialize deposit payment")
	}
	if checkout.Reference != "" {
		reference = checkout.Reference
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"booking_id": booking.ID.String(),
		"reference":  reference,
	}), "deposit payment initialized")
	return &ConfirmResult{Booking: booking, AuthorizationURL: checkout.AuthorizationURL, Reference: reference}, nil
}

func (s *service) GetBooking(ctx context.Context, viewerID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, _, _, err := s.loadForActor(ctx, viewerID, bookingID)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) ListBookings(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filters := ListFilters{Status: params.Status, Limit: params.Limit, Cursor: cursor}

	switch params.Role {
	case RoleProvider:
		profile, err := s.profiles.FindByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
		}
		filters.ProviderID = &profile.ID
	case RoleCustomer, "":
		filters.CustomerID = &userID
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown role %q", params.Role)
	}

	rows, next, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// loadForActor loads the booking and its provider and resolves which side the
// actor is on. Third parties get a forbidden error.
func (s *service) loadForActor(ctx context.Context, actorID, bookingID uuid.UUID) (*models.Booking, *models.ProviderProfile, Role, error) {
	if actorID == uuid.Nil {
		return nil, nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	profile, err := s.profiles.FindByID(ctx, booking.ProviderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}

	switch actorID {
	case booking.CustomerID:
		return booking, profile, RoleCustomer, nil
	case profile.UserID:
		return booking, profile, RoleProvider, nil
	default:
		return nil, nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this booking")
	}
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload booking")
	}
	return booking, nil
}

// checkOffering requires a referenced offering to be listed by the booked
// provider. Without an offering repository the reference is stored as given.
func (s *service) checkOffering(ctx context.Context, offeringID *uuid.UUID, providerProfileID uuid.UUID) error {
	if offeringID == nil || s.offerings == nil {
		return nil
	}
	offering, err := s.offerings.FindByID(ctx, *offeringID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "service offering not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service offering")
	}
	if offering.ProviderProfileID != providerProfileID {
		return pkgerrors.New(pkgerrors.CodeValidation, "service offering belongs to another provider")
	}
	return nil
}

func invalidState(action string, status enums.BookingStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot %s a %s booking", action, status).
		WithDetails(map[string]any{"status": status})
}
