package commands

import (
	"errors"
	"time"
)

// ErrCommandNotFound is returned when a command record does not exist.
var ErrCommandNotFound = errors.New("commands: command not found")

// Status is the persisted lifecycle state of a command.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusReceived  Status = "RECEIVED"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusTimeout   Status = "TIMEOUT"
)

// IsTerminal reports whether the status ends command tracking.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	default:
		return false
	}
}

// IsAckStatus reports whether a device may report this status.
func (s Status) IsAckStatus() bool {
	switch s {
	case StatusReceived, StatusExecuting, StatusCompleted, StatusFailed, StatusTimeout:
		return true
	default:
		return false
	}
}

// Command is the durable record of a command execution.
type Command struct {
	CommandID     string
	TenantID      string
	DeviceID      string
	TemplateName  string
	CommandType   CommandType
	Payload       []byte
	Priority      Priority
	Status        Status
	Message       string
	ExecutionData Value
	CreatedAt     time.Time
	SentAt        time.Time
	UpdatedAt     time.Time
	CompletedAt   time.Time
}

// StatusUpdate carries an acknowledgment outcome to the command store.
type StatusUpdate struct {
	CommandID     string
	Status        Status
	Message       string
	ExecutionData Value
	Timestamp     time.Time
}
