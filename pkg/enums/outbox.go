package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking         OutboxAggregateType = "booking"
	AggregateProviderProfile OutboxAggregateType = "provider_profile"
	AggregateLead            OutboxAggregateType = "lead"
	AggregateTransaction     OutboxAggregateType = "transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateProviderProfile,
	AggregateLead,
	AggregateTransaction,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBookingRequested    OutboxEventType = "booking_requested"
	EventBookingQuoted       OutboxEventType = "booking_quoted"
	EventBookingConfirmed    OutboxEventType = "booking_confirmed"
	EventBookingStarted      OutboxEventType = "booking_started"
	EventBookingCompleted    OutboxEventType = "booking_completed"
	EventBookingCancelled    OutboxEventType = "booking_cancelled"
	EventBookingDisputed     OutboxEventType = "booking_disputed"
	EventLeadUnlocked        OutboxEventType = "lead_unlocked"
	EventSubscriptionChanged OutboxEventType = "subscription_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingRequested,
	EventBookingQuoted,
	EventBookingConfirmed,
	EventBookingStarted,
	EventBookingCompleted,
	EventBookingCancelled,
	EventBookingDisputed,
	EventLeadUnlocked,
	EventSubscriptionChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
