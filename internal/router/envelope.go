package router

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

const source = "discord-bridge"

// Envelope is the JSON body POSTed to each configured endpoint.
type Envelope struct {
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	Timestamp  string          `json:"timestamp"`
	Source     string          `json:"source"`
	DeliveryID string          `json:"delivery_id"`
}

// newEnvelope builds an Envelope for a single event, minting a fresh
// delivery id shared across every retry of the same forward attempt.
func newEnvelope(eventType string, data json.RawMessage, now time.Time) Envelope {
	return Envelope{
		EventType:  eventType,
		Data:       data,
		Timestamp:  now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Source:     source,
		DeliveryID: ulid.Make().String(),
	}
}
