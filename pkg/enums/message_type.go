package enums

import "fmt"

// MessageType maps to the message_type enum in Postgres.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeQuote  MessageType = "quote"
	MessageTypeSystem MessageType = "system"
)

var validMessageTypes = []MessageType{
	MessageTypeText,
	MessageTypeQuote,
	MessageTypeSystem,
}

func (t MessageType) IsValid() bool {
	for _, candidate := range validMessageTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMessageType converts raw input into MessageType; empty input means text.
func ParseMessageType(value string) (MessageType, error) {
	if value == "" {
		return MessageTypeText, nil
	}
	for _, candidate := range validMessageTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message type %q", value)
}
