package eventing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"fieldops-cloud/internal/eventing/eventbus"
)

// Envelope wraps an event payload with delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id"`
	DeviceID      string          `json:"device_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	TenantID      string
	SchemaVersion int
}

// Routed is implemented by events that know their device and command.
// Events without it get a fresh correlation id and no device.
type Routed interface {
	RoutingKey() (commandID, deviceID string)
	EventTime() time.Time
}

// BuildEnvelope marshals event and fills the metadata Meta leaves empty.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:       meta.EventID,
		EventType:     eventbus.EventType(event),
		OccurredAt:    meta.OccurredAt,
		CorrelationID: meta.CorrelationID,
		TenantID:      meta.TenantID,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	if routed, ok := event.(Routed); ok {
		commandID, deviceID := routed.RoutingKey()
		env.DeviceID = deviceID
		if env.CorrelationID == "" {
			env.CorrelationID = commandID
		}
		if env.OccurredAt.IsZero() {
			env.OccurredAt = routed.EventTime()
		}
	}
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}
	return env, nil
}
