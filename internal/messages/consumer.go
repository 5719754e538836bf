package messages

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
)

const bookingMessagesConsumer = "booking-messages"

type messageWriter interface {
	Create(ctx context.Context, message *models.Message) error
}

type profileFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error)
}

type eventClaimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns booking lifecycle events into system messages in the
// customer and provider thread.
type Consumer struct {
	repo         messageWriter
	profiles     profileFinder
	subscription *pubsub.Subscriber
	claims       eventClaimer
	logg         *logger.Logger
	metrics      *metrics.ConsumerMetrics
	now          func() time.Time
}

// NewConsumer builds a booking message consumer. m may be nil.
func NewConsumer(repo messageWriter, profiles profileFinder, subscription *pubsub.Subscriber, claims eventClaimer, logg *logger.Logger, m *metrics.ConsumerMetrics) (*Consumer, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("messages repository required")
	case profiles == nil:
		return nil, fmt.Errorf("provider profiles required")
	case subscription == nil:
		return nil, fmt.Errorf("booking messages subscription required")
	case claims == nil:
		return nil, fmt.Errorf("idempotency manager required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		profiles:     profiles,
		subscription: subscription,
		claims:       claims,
		logg:         logg,
		metrics:      m,
		now:          time.Now,
	}, nil
}

// Name identifies the consumer in logs, metrics and idempotency keys.
func (c *Consumer) Name() string { return bookingMessagesConsumer }

// Run receives until ctx is canceled. Only retry outcomes are nacked.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		started := c.now()
		result := c.process(ctx, msg)
		c.metrics.ObserveDelivery(bookingMessagesConsumer, msg.Attributes["event_type"], string(result), c.now().Sub(started))
		if result == outcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type outcome string

const (
	outcomePosted    outcome = "posted"
	outcomeSkipped   outcome = "skipped"
	outcomeDuplicate outcome = "duplicate"
	// outcomeDropped is acked: a malformed delivery will not improve on redelivery.
	outcomeDropped outcome = "dropped"
	outcomeRetry   outcome = "retry"
)

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) outcome {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if _, ok := systemMessageEvents[eventType]; !ok {
		c.logg.Debug(logCtx, "skipping event without system message")
		return outcomeSkipped
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return outcomeDropped
	}
	var payload bookingEventPayload
	if err := envelope.DecodeData(&payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return outcomeDropped
	}
	if payload.BookingID == uuid.Nil || payload.CustomerID == uuid.Nil || payload.ProviderID == uuid.Nil {
		c.logg.Warn(logCtx, "booking event missing identifiers")
		return outcomeDropped
	}
	eventID := envelope.EventUUID()
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":   eventID.String(),
		"booking_id": payload.BookingID.String(),
	})

	already, err := c.claims.Claim(ctx, bookingMessagesConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return outcomeRetry
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return outcomeDuplicate
	}

	if err := c.postSystemMessage(ctx, eventType, payload); err != nil {
		c.logg.Error(logCtx, "system message failed", err)
		if err := c.claims.Release(ctx, bookingMessagesConsumer, eventID); err != nil {
			c.logg.Error(logCtx, "releasing idempotency claim failed", err)
		}
		return outcomeRetry
	}

	if err := c.claims.Complete(ctx, bookingMessagesConsumer, eventID); err != nil {
		// the message is written; only a redelivery after the lease expires could repeat it
		c.logg.Error(logCtx, "marking event complete failed", err)
	}
	c.logg.Info(logCtx, "booking system message posted")
	return outcomePosted
}

func (c *Consumer) postSystemMessage(ctx context.Context, eventType enums.OutboxEventType, payload bookingEventPayload) error {
	profile, err := c.profiles.FindByID(ctx, payload.ProviderID)
	if err != nil {
		return fmt.Errorf("load provider profile: %w", err)
	}

	bookingID := payload.BookingID
	msgType := enums.MessageTypeSystem
	if eventType == enums.EventBookingQuoted {
		msgType = enums.MessageTypeQuote
	}
	return c.repo.Create(ctx, &models.Message{
		SenderID:   profile.UserID,
		ReceiverID: payload.CustomerID,
		BookingID:  &bookingID,
		Content:    systemMessageText(eventType, payload),
		Type:       msgType,
	})
}

var systemMessageEvents = map[enums.OutboxEventType]struct{}{
	enums.EventBookingQuoted:    {},
	enums.EventBookingConfirmed: {},
	enums.EventBookingStarted:   {},
	enums.EventBookingCompleted: {},
	enums.EventBookingCancelled: {},
	enums.EventBookingDisputed:  {},
}

func systemMessageText(eventType enums.OutboxEventType, payload bookingEventPayload) string {
	switch eventType {
	case enums.EventBookingQuoted:
		return fmt.Sprintf("Quote sent: total %s, deposit due %s.", formatAmount(payload.TotalAmount), formatAmount(payload.DepositAmount))
	case enums.EventBookingConfirmed:
		return "Deposit received. The booking is confirmed."
	case enums.EventBookingStarted:
		return "Work on this booking has started."
	case enums.EventBookingCompleted:
		return "The booking has been marked as completed."
	case enums.EventBookingCancelled:
		return withReason("The booking was cancelled.", payload.Reason)
	case enums.EventBookingDisputed:
		return withReason("A dispute was opened for this booking.", payload.Reason)
	default:
		return fmt.Sprintf("Booking updated: %s.", eventType)
	}
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + " Reason: " + reason
}

func formatAmount(amount *decimal.Decimal) string {
	if amount == nil {
		return "n/a"
	}
	return amount.StringFixed(2)
}

// bookingEventPayload is the superset of the booking event payloads this consumer reads.
type bookingEventPayload struct {
	BookingID     uuid.UUID        `json:"booking_id"`
	CustomerID    uuid.UUID        `json:"customer_id"`
	ProviderID    uuid.UUID        `json:"provider_id"`
	Reason        string           `json:"reason,omitempty"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	DepositAmount *decimal.Decimal `json:"deposit_amount,omitempty"`
}
