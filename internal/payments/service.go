package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/bookings"
	"github.com/servicelink/servicelink-backend/internal/ledger"
	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
	"github.com/servicelink/servicelink-backend/pkg/paystack"
)

const (
	eventChargeSuccess = "charge.success"
	referenceIndex     = "transactions_payment_reference_key"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type profileFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error)
}

type ledgerService interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordInput) (*models.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error)
	ProviderTotals(ctx context.Context, providerProfileID uuid.UUID) (ledger.Totals, error)
}

// Gateway verifies charges and webhook signatures.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error)
	VerifySignature(body []byte, signature string) bool
}

type transitionObserver interface {
	ObserveTransition(from, to string)
}

// Service settles deposits and reports provider earnings.
type Service interface {
	FinalizeDepositPayment(ctx context.Context, reference string) (*FinalizeResult, error)
	VerifyPayment(ctx context.Context, customerID uuid.UUID, reference string) (*FinalizeResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ProviderEarnings(ctx context.Context, providerUserID uuid.UUID) (*Earnings, error)
	PaymentHistory(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error)
}

// FinalizeResult is the booking after settlement. AlreadyProcessed is set when
// the reference had been settled before.
type FinalizeResult struct {
	Booking          *models.Booking     `json:"booking"`
	Transaction      *models.Transaction `json:"transaction,omitempty"`
	AlreadyProcessed bool                `json:"already_processed"`
}

// Earnings summarises a provider's settled and pending income.
type Earnings struct {
	TotalEarnings     decimal.Decimal `json:"total_earnings"`
	TotalFees         decimal.Decimal `json:"total_fees"`
	NetEarnings       decimal.Decimal `json:"net_earnings"`
	PendingPayments   decimal.Decimal `json:"pending_payments"`
	PaymentCount      int             `json:"payment_count"`
	CompletedBookings int64           `json:"completed_bookings"`
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Bookings          bookings.Repository
	Profiles          profileFinder
	Ledger            ledgerService
	Gateway           Gateway
	Guard             *WebhookGuard
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Metrics           transitionObserver
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	bookings bookings.Repository
	profiles profileFinder
	ledger   ledgerService
	gateway  Gateway
	guard    *WebhookGuard
	outbox   outbox.Emitter
	tx       txRunner
	metrics  transitionObserver
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking repo required")
	}
	if params.Profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		bookings: params.Bookings,
		profiles: params.Profiles,
		ledger:   params.Ledger,
		gateway:  params.Gateway,
		guard:    params.Guard,
		outbox:   params.Outbox,
		tx:       params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// FinalizeDepositPayment settles a verified deposit. Settling the same
// reference twice leaves a single transaction and the booking untouched.
func (s *service) FinalizeDepositPayment(ctx context.Context, reference string) (*FinalizeResult, error) {
	verification, bookingID, err := s.verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, verification, bookingID)
}

// VerifyPayment is the customer-driven settlement path after the checkout redirect.
func (s *service) VerifyPayment(ctx context.Context, customerID uuid.UUID, reference string) (*FinalizeResult, error) {
	verification, bookingID, err := s.verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another customer")
	}
	return s.finalize(ctx, verification, bookingID)
}

func (s *service) verify(ctx context.Context, reference string) (*paystack.Verification, uuid.UUID, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	verification, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, uuid.Nil, err
		}
		return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify payment")
	}
	if !verification.Succeeded() {
		return nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeDependency, "payment was not successful").
			WithDetails(map[string]any{"gateway_status": verification.Status})
	}
	if verification.Reference == "" {
		verification.Reference = reference
	}
	bookingID, err := uuid.Parse(verification.Metadata["booking_id"])
	if err != nil {
		return nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment metadata is missing the booking id")
	}
	return verification, bookingID, nil
}

func (s *service) finalize(ctx context.Context, verification *paystack.Verification, bookingID uuid.UUID) (*FinalizeResult, error) {
	reference := verification.Reference
	existing, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment reference")
	}
	if existing != nil {
		return s.alreadyProcessed(ctx, bookingID, existing)
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.FindByID(ctx, booking.ProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}

	now := s.now()
	gatewayStatus := verification.Status
	var txn *models.Transaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bookings.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock booking")
		}
		if locked.Status != enums.BookingStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot settle a deposit for a %s booking", locked.Status)
		}
		// the quote can change after checkout opened
		paid, due := verification.Amount.Round(2), locked.DepositAmount.Round(2)
		if !paid.Equal(due) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid amount does not match the deposit due").
				WithDetails(map[string]any{"paid": paid.StringFixed(2), "deposit_due": due.StringFixed(2)})
		}

		txn, err = s.ledger.Record(ctx, tx, ledger.RecordInput{
			CustomerID:       locked.CustomerID,
			BookingID:        &bookingID,
			Type:             enums.TransactionTypeDeposit,
			Status:           enums.TransactionStatusCompleted,
			Amount:           verification.Amount,
			PaymentReference: &reference,
			GatewayStatus:    &gatewayStatus,
			Description:      "Deposit for " + locked.ServiceTitle,
			Metadata:         map[string]any{"currency": verification.Currency},
		})
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":           enums.BookingStatusConfirmed,
			"contact_revealed": profile.AutoRevealContact,
			"updated_at":       now,
		}
		if profile.AutoRevealContact {
			updates["contact_revealed_at"] = now
		}
		if err := repo.Update(ctx, bookingID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm booking")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingConfirmed,
			AggregateType: enums.AggregateBooking,
			AggregateID:   bookingID,
			Actor:         &outbox.ActorRef{UserID: locked.CustomerID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.BookingConfirmedEvent{
				BookingID:        bookingID,
				CustomerID:       locked.CustomerID,
				ProviderID:       locked.ProviderID,
				PaymentReference: reference,
				DepositAmount:    verification.Amount,
				ContactRevealed:  profile.AutoRevealContact,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, referenceIndex) || db.IsUniqueViolation(err, "") {
			// a concurrent delivery settled the reference first
			winner, findErr := s.ledger.FindByReference(ctx, reference)
			if findErr != nil || winner == nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settled payment")
			}
			return s.alreadyProcessed(ctx, bookingID, winner)
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(enums.BookingStatusPending), string(enums.BookingStatusConfirmed))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"reference":  reference,
		"amount":     verification.Amount.String(),
	}), "deposit settled")

	confirmed, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &FinalizeResult{Booking: confirmed, Transaction: txn}, nil
}

func (s *service) alreadyProcessed(ctx context.Context, bookingID uuid.UUID, txn *models.Transaction) (*FinalizeResult, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &FinalizeResult{Booking: booking, Transaction: txn, AlreadyProcessed: true}, nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// HandleWebhook settles charge.success deliveries. Other events are acknowledged
// and ignored, as are charges that can no longer settle their booking.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.gateway.VerifySignature(payload, signature) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"event": event.Event, "reference": event.Data.Reference})
	if event.Event != eventChargeSuccess {
		s.logg.Debug(logCtx, "webhook event ignored")
		return nil
	}
	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook reference missing")
	}

	if s.guard != nil {
		duplicate, err := s.guard.CheckAndMark(ctx, reference)
		if err != nil {
			// the unique payment reference still prevents double settlement
			s.logg.Warn(logCtx, "webhook idempotency store unavailable")
		} else if duplicate {
			s.logg.Info(logCtx, "duplicate webhook skipped")
			return nil
		}
	}

	if _, err := s.FinalizeDepositPayment(ctx, reference); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// redelivery cannot change the outcome; the charge needs a manual refund
			s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "charge acknowledged without settling booking")
			return nil
		}
		if s.guard != nil {
			if releaseErr := s.guard.Release(ctx, reference); releaseErr != nil {
				s.logg.Warn(logCtx, fmt.Sprintf("release webhook key: %v", releaseErr))
			}
		}
		return err
	}
	return nil
}

func (s *service) ProviderEarnings(ctx context.Context, providerUserID uuid.UUID) (*Earnings, error) {
	profile, err := s.profiles.FindByUserID(ctx, providerUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}

	totals, err := s.ledger.ProviderTotals(ctx, profile.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum provider payments")
	}
	active, err := s.bookings.ListByProviderStatus(ctx, profile.ID, []enums.BookingStatus{
		enums.BookingStatusConfirmed,
		enums.BookingStatusInProgress,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active bookings")
	}
	pending := decimal.Zero
	for _, booking := range active {
		pending = pending.Add(booking.ProviderNetAmount)
	}
	completed, err := s.bookings.CountByProviderStatus(ctx, profile.ID, enums.BookingStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count completed bookings")
	}

	return &Earnings{
		TotalEarnings:     totals.Gross,
		TotalFees:         totals.Fees,
		NetEarnings:       totals.Net,
		PendingPayments:   pending,
		PaymentCount:      totals.Count,
		CompletedBookings: completed,
	}, nil
}

func (s *service) PaymentHistory(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.ledger.ListForCustomer(ctx, customerID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

func (s *service) loadBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}
