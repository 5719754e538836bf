package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on events whose producer did not pick a schema version.
const EnvelopeVersion = 1

// ErrEmptyEventData is returned when an envelope carries no data or literal null.
var ErrEmptyEventData = errors.New("envelope data is empty")

// ActorRef names the user whose request produced an event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON document stored in outbox_events.payload and
// sent verbatim as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and checks the fields every consumer relies on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		return env, fmt.Errorf("envelope event id %q: %w", env.EventID, err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEmptyEventData
	}
	return env, nil
}

// EventUUID is the parsed form of EventID; uuid.Nil when it does not parse.
func (e PayloadEnvelope) EventUUID() uuid.UUID {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// DecodeData unmarshals the event data into dst.
func (e PayloadEnvelope) DecodeData(dst any) error {
	return json.Unmarshal(e.Data, dst)
}
