// Package registry decides where each outbox event goes and how its payload decodes.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
)

type stream int

const (
	domainStream stream = iota
	billingStream
)

// table is every event the relay knows how to deliver. Ordered events share
// an ordering key per aggregate so consumers see them in commit order.
var table = []struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	stream    stream
	ordered   bool
	payload   func() any
}{
	{enums.EventBookingRequested, enums.AggregateBooking, domainStream, true, func() any { return &payloads.BookingRequestedEvent{} }},
	{enums.EventBookingQuoted, enums.AggregateBooking, domainStream, true, func() any { return &payloads.BookingQuotedEvent{} }},
	{enums.EventBookingConfirmed, enums.AggregateBooking, domainStream, true, func() any { return &payloads.BookingConfirmedEvent{} }},
	{enums.EventBookingStarted, enums.AggregateBooking, domainStream, true, statusChanged},
	{enums.EventBookingCompleted, enums.AggregateBooking, domainStream, true, statusChanged},
	{enums.EventBookingCancelled, enums.AggregateBooking, domainStream, true, statusChanged},
	{enums.EventBookingDisputed, enums.AggregateBooking, domainStream, true, statusChanged},
	{enums.EventLeadUnlocked, enums.AggregateLead, billingStream, false, func() any { return &payloads.LeadUnlockedEvent{} }},
	{enums.EventSubscriptionChanged, enums.AggregateProviderProfile, billingStream, true, func() any { return &payloads.SubscriptionChangedEvent{} }},
}

func statusChanged() any { return &payloads.BookingStatusChangedEvent{} }

// Route is the resolved destination of one event type.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	Ordered       bool
	newPayload    func() any
}

// Routed is an outbox row ready to publish.
type Routed struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
	// OrderingKey is empty for unordered events.
	OrderingKey string
}

// RouteError marks a row that will never publish as it stands. Reason is the
// dead-letter reason the relay records for it.
type RouteError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// Unroutable builds a RouteError for rows no publisher can take.
func Unroutable(format string, args ...any) error {
	return &RouteError{Reason: enums.OutboxDLQReasonUnroutable, Err: fmt.Errorf(format, args...)}
}

func invalidPayload(err error) error {
	return &RouteError{Reason: enums.OutboxDLQReasonInvalidPayload, Err: err}
}

// ReasonOf reports the dead-letter reason carried by err, if any.
func ReasonOf(err error) (enums.OutboxDLQErrorReason, bool) {
	var routeErr *RouteError
	if errors.As(err, &routeErr) {
		return routeErr.Reason, true
	}
	return "", false
}

// Routes maps event types onto the configured topics.
type Routes struct {
	byType map[enums.OutboxEventType]Route
}

// NewRoutes binds the table to topic names. Billing events share the domain
// topic when no billing topic is configured.
func NewRoutes(cfg config.PubSubConfig) (*Routes, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	topics := map[stream]string{domainStream: cfg.DomainTopic, billingStream: cfg.BillingTopic}
	if topics[billingStream] == "" {
		topics[billingStream] = cfg.DomainTopic
	}

	r := &Routes{byType: make(map[enums.OutboxEventType]Route, len(table))}
	for _, entry := range table {
		r.byType[entry.event] = Route{
			EventType:     entry.event,
			AggregateType: entry.aggregate,
			Topic:         topics[entry.stream],
			Ordered:       entry.ordered,
			newPayload:    entry.payload,
		}
	}
	return r, nil
}

// All lists the routes sorted by event type.
func (r *Routes) All() []Route {
	out := make([]Route, 0, len(r.byType))
	for _, route := range r.byType {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out
}

// Topics lists each distinct destination topic once.
func (r *Routes) Topics() []string {
	seen := map[string]bool{}
	var out []string
	for _, route := range r.All() {
		if !seen[route.Topic] {
			seen[route.Topic] = true
			out = append(out, route.Topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve checks the row against its route and decodes the typed payload.
// Every error it returns is a *RouteError.
func (r *Routes) Resolve(row models.OutboxEvent) (*Routed, error) {
	route, ok := r.byType[row.EventType]
	switch {
	case !ok:
		return nil, Unroutable("no route for event type %q", row.EventType)
	case route.AggregateType != row.AggregateType:
		return nil, Unroutable("%s belongs to %s aggregates, row has %s", row.EventType, route.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, Unroutable("%s row has no aggregate id", row.EventType)
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, invalidPayload(err)
	}
	payload := route.newPayload()
	if err := env.DecodeData(payload); err != nil {
		return nil, invalidPayload(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}

	routed := &Routed{Route: route, Envelope: env, Payload: payload}
	if route.Ordered {
		routed.OrderingKey = string(row.AggregateType) + ":" + row.AggregateID.String()
	}
	return routed, nil
}
