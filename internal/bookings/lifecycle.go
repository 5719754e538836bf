package bookings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/ledger"
	"github.com/servicelink/servicelink-backend/internal/pricing"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
)

type transition struct {
	name    string
	to      enums.BookingStatus
	from    []enums.BookingStatus
	actors  []Role
	event   enums.OutboxEventType
	onApply func(s *service, ctx context.Context, tx *gorm.DB, booking *models.Booking, change *stateChange) error
}

type stateChange struct {
	actorID uuid.UUID
	role    Role
	reason  string
	at      time.Time
	updates map[string]any
}

var (
	startTransition = transition{
		name:   "start",
		to:     enums.BookingStatusInProgress,
		from:   []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusConfirmed},
		actors: []Role{RoleProvider},
		event:  enums.EventBookingStarted,
	}
	completeTransition = transition{
		name:    "complete",
		to:      enums.BookingStatusCompleted,
		from:    []enums.BookingStatus{enums.BookingStatusConfirmed, enums.BookingStatusInProgress},
		actors:  []Role{RoleCustomer, RoleProvider},
		event:   enums.EventBookingCompleted,
		onApply: (*service).recordCompletion,
	}
	cancelTransition = transition{
		name:    "cancel",
		to:      enums.BookingStatusCancelled,
		from:    []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusConfirmed, enums.BookingStatusInProgress},
		actors:  []Role{RoleCustomer, RoleProvider},
		event:   enums.EventBookingCancelled,
		onApply: (*service).recordCancellation,
	}
	disputeTransition = transition{
		name:    "dispute",
		to:      enums.BookingStatusDisputed,
		from:    []enums.BookingStatus{enums.BookingStatusConfirmed, enums.BookingStatusInProgress, enums.BookingStatusCompleted},
		actors:  []Role{RoleCustomer, RoleProvider},
		event:   enums.EventBookingDisputed,
		onApply: (*service).recordDispute,
	}
)

func (t transition) allows(status enums.BookingStatus) bool {
	for _, candidate := range t.from {
		if candidate == status {
			return true
		}
	}
	return false
}

func (t transition) permits(role Role) bool {
	for _, candidate := range t.actors {
		if candidate == role {
			return true
		}
	}
	return false
}

func (s *service) StartBooking(ctx context.Context, actorID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.apply(ctx, startTransition, actorID, bookingID, "")
}

func (s *service) CompleteBooking(ctx context.Context, actorID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.apply(ctx, completeTransition, actorID, bookingID, "")
}

func (s *service) CancelBooking(ctx context.Context, actorID, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	return s.apply(ctx, cancelTransition, actorID, bookingID, strings.TrimSpace(reason))
}

func (s *service) InitiateDispute(ctx context.Context, actorID, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}
	return s.apply(ctx, disputeTransition, actorID, bookingID, reason)
}

func (s *service) apply(ctx context.Context, t transition, actorID, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	booking, _, role, err := s.loadForActor(ctx, actorID, bookingID)
	if err != nil {
		return nil, err
	}
	if !t.permits(role) {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "the %s cannot %s this booking", role, t.name)
	}

	var from enums.BookingStatus
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock booking")
		}
		if !t.allows(locked.Status) {
			return invalidState(t.name, locked.Status)
		}
		from = locked.Status

		change := &stateChange{
			actorID: actorID,
			role:    role,
			reason:  reason,
			at:      s.now(),
			updates: map[string]any{},
		}
		if t.onApply != nil {
			if err := t.onApply(s, ctx, tx, locked, change); err != nil {
				return err
			}
		}
		change.updates["status"] = t.to
		change.updates["updated_at"] = change.at
		if err := repo.Update(ctx, locked.ID, change.updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     t.event,
			AggregateType: enums.AggregateBooking,
			AggregateID:   locked.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
			Data: payloads.BookingStatusChangedEvent{
				BookingID:  locked.ID,
				CustomerID: locked.CustomerID,
				ProviderID: locked.ProviderID,
				From:       from,
				To:         t.to,
				Reason:     reason,
				OccurredAt: change.at,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(t.to))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"booking_id": booking.ID.String(),
		"from":       string(from),
		"to":         string(t.to),
		"actor_role": string(role),
	}), "booking transitioned")
	return s.reload(ctx, booking.ID)
}

// recordCompletion writes the remaining balance charge and the provider payout.
func (s *service) recordCompletion(ctx context.Context, tx *gorm.DB, booking *models.Booking, change *stateChange) error {
	change.updates["completed_at"] = change.at
	bookingID := booking.ID

	remaining := pricing.CalculateRemainingBalance(booking.TotalAmount, booking.DepositAmount)
	if remaining.IsPositive() {
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			CustomerID:  booking.CustomerID,
			BookingID:   &bookingID,
			Type:        enums.TransactionTypePayment,
			Status:      enums.TransactionStatusCompleted,
			Amount:      remaining,
			Description: "Remaining balance for " + booking.ServiceTitle,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record remaining balance")
		}
	}

	payout := pricing.CalculateProviderPayout(booking.ServicePrice, booking.TransactionFeeAmount, booking.BookingFee)
	providerID := booking.ProviderID
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
		CustomerID:  booking.CustomerID,
		ProviderID:  &providerID,
		BookingID:   &bookingID,
		Type:        enums.TransactionTypePayment,
		Status:      enums.TransactionStatusCompleted,
		Amount:      payout.Gross,
		Fee:         payout.Fee,
		NetAmount:   &payout.Net,
		Description: "Provider payout for " + booking.ServiceTitle,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record provider payout")
	}
	return nil
}

// recordCancellation refunds the full deposit when one was collected.
func (s *service) recordCancellation(ctx context.Context, tx *gorm.DB, booking *models.Booking, change *stateChange) error {
	change.updates["cancelled_at"] = change.at
	if change.reason != "" {
		change.updates["notes"] = appendNote(booking.Notes, "Cancellation reason: "+change.reason)
	}

	paid, err := s.ledger.HasCompleted(ctx, tx, booking.ID, enums.TransactionTypeDeposit)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check deposit")
	}
	if !paid {
		return nil
	}
	bookingID := booking.ID
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
		CustomerID:  booking.CustomerID,
		BookingID:   &bookingID,
		Type:        enums.TransactionTypeRefund,
		Status:      enums.TransactionStatusCompleted,
		Amount:      booking.DepositAmount,
		Description: "Deposit refund for " + booking.ServiceTitle,
		Metadata:    map[string]any{"cancelled_by": string(change.role)},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit refund")
	}
	return nil
}

func (s *service) recordDispute(ctx context.Context, tx *gorm.DB, booking *models.Booking, change *stateChange) error {
	change.updates["notes"] = appendNote(booking.Notes, "Dispute initiated: "+change.reason)
	return nil
}

func appendNote(existing *string, line string) string {
	if existing == nil || *existing == "" {
		return line
	}
	return *existing + "\n" + line
}
