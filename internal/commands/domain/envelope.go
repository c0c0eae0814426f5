package commands

import (
	"errors"
	"fmt"
	"time"
)

// Priority orders commands for the device.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// NormalizePriority validates a priority, defaulting empty input to normal.
func NormalizePriority(value string) (Priority, bool) {
	switch Priority(value) {
	case "":
		return PriorityNormal, true
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return Priority(value), true
	default:
		return "", false
	}
}

// Envelope is the JSON document published on a device command topic.
type Envelope struct {
	CommandID  string           `json:"commandId"`
	DeviceID   string           `json:"deviceId"`
	Type       CommandType      `json:"type"`
	Action     string           `json:"action,omitempty"`
	Parameters map[string]Value `json:"parameters,omitempty"`
	Payload    string           `json:"payload,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Priority   Priority         `json:"priority"`
	ExpiresAt  *time.Time       `json:"expiresAt,omitempty"`
}

// ErrInvalidEnvelope marks a structurally invalid command envelope.
var ErrInvalidEnvelope = errors.New("commands: invalid envelope")

// Validate checks the envelope structure and its command type.
func (e Envelope) Validate() error {
	if e.CommandID == "" {
		return fmt.Errorf("%w: commandId required", ErrInvalidEnvelope)
	}
	if e.DeviceID == "" {
		return fmt.Errorf("%w: deviceId required", ErrInvalidEnvelope)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: type required", ErrInvalidEnvelope)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEnvelope, e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp required", ErrInvalidEnvelope)
	}
	if _, ok := NormalizePriority(string(e.Priority)); !ok || e.Priority == "" {
		return fmt.Errorf("%w: invalid priority %q", ErrInvalidEnvelope, e.Priority)
	}
	return nil
}

// Expired reports whether the envelope deadline passed at now.
func (e Envelope) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Acknowledgment is a device report about a dispatched command.
type Acknowledgment struct {
	CommandID     string    `json:"commandId"`
	DeviceID      string    `json:"deviceId"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	ExecutionData *Value    `json:"executionData,omitempty"`
}

// ErrInvalidAcknowledgment marks a malformed acknowledgment payload.
var ErrInvalidAcknowledgment = errors.New("commands: invalid acknowledgment")

// Validate checks the acknowledgment shape.
func (a Acknowledgment) Validate() error {
	if a.CommandID == "" {
		return fmt.Errorf("%w: commandId required", ErrInvalidAcknowledgment)
	}
	if a.DeviceID == "" {
		return fmt.Errorf("%w: deviceId required", ErrInvalidAcknowledgment)
	}
	if !a.Status.IsAckStatus() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAcknowledgment, a.Status)
	}
	return nil
}

// Data returns the execution data or null.
func (a Acknowledgment) Data() Value {
	if a.ExecutionData == nil {
		return Null()
	}
	return *a.ExecutionData
}
