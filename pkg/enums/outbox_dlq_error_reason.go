package enums

// OutboxDLQErrorReason says why the relay gave up on an outbox row. It maps to
// outbox_dlq_error_reason_enum.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts marks rows whose publish kept failing.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonUnroutable marks rows no topic accepts: unknown event
	// types, aggregate mismatches and topics without a publisher.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
	// OutboxDLQReasonInvalidPayload marks rows whose envelope or data does not decode.
	OutboxDLQReasonInvalidPayload OutboxDLQErrorReason = "invalid_payload"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonUnroutable, OutboxDLQReasonInvalidPayload:
		return true
	}
	return false
}

// Requeueable reports whether an operator may push the row back into the
// outbox. Rows with broken payloads would only land here again.
func (r OutboxDLQErrorReason) Requeueable() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonUnroutable
}
