package events

import (
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

// CommandDispatched is emitted when a command is published to its device.
type CommandDispatched struct {
	CommandID   string               `json:"command_id"`
	DeviceID    string               `json:"device_id"`
	CommandType commands.CommandType `json:"command_type"`
	Priority    commands.Priority    `json:"priority"`
	Topic       string               `json:"topic"`
	Timeout     time.Duration        `json:"timeout"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// CommandStatusChanged is emitted after a status update reaches the store.
type CommandStatusChanged struct {
	CommandID     string          `json:"command_id"`
	DeviceID      string          `json:"device_id"`
	Status        commands.Status `json:"status"`
	Message       string          `json:"message,omitempty"`
	ExecutionData commands.Value  `json:"execution_data"`
	Terminal      bool            `json:"terminal"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// DeviceStatusReported is emitted for every device status message.
type DeviceStatusReported struct {
	DeviceID   string         `json:"device_id"`
	Status     commands.Value `json:"status"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (e CommandDispatched) RoutingKey() (string, string) { return e.CommandID, e.DeviceID }

func (e CommandDispatched) EventTime() time.Time { return e.OccurredAt }

func (e CommandStatusChanged) RoutingKey() (string, string) { return e.CommandID, e.DeviceID }

func (e CommandStatusChanged) EventTime() time.Time { return e.OccurredAt }

func (e DeviceStatusReported) RoutingKey() (string, string) { return "", e.DeviceID }

func (e DeviceStatusReported) EventTime() time.Time { return e.OccurredAt }
