package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
)

func TestResolveDecodesTypedPayload(t *testing.T) {
	routes := testRoutes(t)
	bookingID := uuid.New()

	routed, err := routes.Resolve(row(t, enums.EventBookingConfirmed, enums.AggregateBooking, bookingID, payloads.BookingConfirmedEvent{
		BookingID:        bookingID,
		PaymentReference: "BK-ref-1",
		DepositAmount:    decimal.RequireFromString("20.25"),
		ContactRevealed:  true,
	}))
	require.NoError(t, err)

	assert.Equal(t, "domain-topic", routed.Route.Topic)
	assert.Equal(t, "booking:"+bookingID.String(), routed.OrderingKey)
	payload, ok := routed.Payload.(*payloads.BookingConfirmedEvent)
	require.True(t, ok, "payload type %T", routed.Payload)
	assert.True(t, payload.DepositAmount.Equal(decimal.RequireFromString("20.25")))
	assert.NotEqual(t, uuid.Nil, routed.Envelope.EventUUID())
}

func TestBillingEventsRouteToBillingTopic(t *testing.T) {
	routes := testRoutes(t)

	lead, err := routes.Resolve(row(t, enums.EventLeadUnlocked, enums.AggregateLead, uuid.New(), payloads.LeadUnlockedEvent{LeadID: uuid.New()}))
	require.NoError(t, err)
	assert.Equal(t, "billing-topic", lead.Route.Topic)
	assert.Empty(t, lead.OrderingKey, "lead unlocks are unordered")

	profileID := uuid.New()
	sub, err := routes.Resolve(row(t, enums.EventSubscriptionChanged, enums.AggregateProviderProfile, profileID, payloads.SubscriptionChangedEvent{ProviderProfileID: profileID}))
	require.NoError(t, err)
	assert.Equal(t, "billing-topic", sub.Route.Topic)
	assert.Equal(t, "provider_profile:"+profileID.String(), sub.OrderingKey)

	assert.Equal(t, []string{"billing-topic", "domain-topic"}, routes.Topics())
}

func TestBillingFallsBackToDomainTopic(t *testing.T) {
	routes, err := NewRoutes(config.PubSubConfig{DomainTopic: "only-topic"})
	require.NoError(t, err)
	assert.Len(t, routes.All(), 9)
	assert.Equal(t, []string{"only-topic"}, routes.Topics())

	_, err = NewRoutes(config.PubSubConfig{})
	assert.Error(t, err)
}

func TestResolveRejections(t *testing.T) {
	routes := testRoutes(t)
	id := uuid.New()
	body := payloads.BookingStatusChangedEvent{BookingID: id}

	nullData := row(t, enums.EventBookingStarted, enums.AggregateBooking, id, body)
	nullData.Payload = json.RawMessage(`{"version":1,"eventId":"` + uuid.NewString() + `","data":null}`)
	wrongShape := row(t, enums.EventBookingStarted, enums.AggregateBooking, id, body)
	wrongShape.Payload = json.RawMessage(`{"version":1,"eventId":"` + uuid.NewString() + `","data":{"booking_id":42}}`)

	cases := map[string]struct {
		row    models.OutboxEvent
		reason enums.OutboxDLQErrorReason
	}{
		"unknown event":      {row(t, "booking_exploded", enums.AggregateBooking, id, body), enums.OutboxDLQReasonUnroutable},
		"aggregate mismatch": {row(t, enums.EventBookingStarted, enums.AggregateLead, id, body), enums.OutboxDLQReasonUnroutable},
		"missing aggregate":  {row(t, enums.EventBookingStarted, enums.AggregateBooking, uuid.Nil, body), enums.OutboxDLQReasonUnroutable},
		"null data":          {nullData, enums.OutboxDLQReasonInvalidPayload},
		"wrong data shape":   {wrongShape, enums.OutboxDLQReasonInvalidPayload},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := routes.Resolve(tc.row)
			require.Error(t, err)
			reason, ok := ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestReasonOfPlainError(t *testing.T) {
	_, ok := ReasonOf(assert.AnError)
	assert.False(t, ok)
	reason, ok := ReasonOf(Unroutable("topic %s gone", "x"))
	assert.True(t, ok)
	assert.Equal(t, enums.OutboxDLQReasonUnroutable, reason)
}

func testRoutes(t *testing.T) *Routes {
	t.Helper()
	routes, err := NewRoutes(config.PubSubConfig{DomainTopic: "domain-topic", BillingTopic: "billing-topic"})
	require.NoError(t, err)
	return routes
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       payload,
	}
}
