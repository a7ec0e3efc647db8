package amqp

import (
	"encoding/json"
	"time"
)

// ChangeMessage announces that one entity changed locally. It carries only
// the identity and version; the consumer triggers a sync cycle and lets the
// engine read current state from its own store.
type ChangeMessage struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage builds a message stamped with the current time.
func NewChangeMessage(kind, id string, version int64) *ChangeMessage {
	return &ChangeMessage{
		Kind:      kind,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON parses a message from JSON bytes.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
