package application

import (
	"errors"
	"sync"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

// ErrDuplicateCommand is returned when a command id is in flight or already retired.
var ErrDuplicateCommand = errors.New("commands: duplicate command id")

const defaultRetiredRetention = time.Hour

// InFlightCommand is a dispatched command awaiting a terminal outcome.
type InFlightCommand struct {
	CommandID    string
	DeviceID     string
	Envelope     commands.Envelope
	DispatchedAt time.Time
	ExpiresAt    *time.Time
	Timeout      time.Duration
}

type inFlightEntry struct {
	command InFlightCommand
	timer   *time.Timer
}

// InFlightRegistry tracks dispatched commands. Removing an entry under the
// lock is the single cancellation token: whichever of the terminal ack or the
// timer removes it first owns the outcome.
type InFlightRegistry struct {
	mu        sync.Mutex
	entries   map[string]*inFlightEntry
	retired   map[string]time.Time
	retention time.Duration
	lastPrune time.Time
	now       func() time.Time
}

// NewInFlightRegistry constructs a registry. Retired ids are remembered for
// retention so late acknowledgments and re-dispatches of them are refused.
func NewInFlightRegistry(retention time.Duration) *InFlightRegistry {
	if retention <= 0 {
		retention = defaultRetiredRetention
	}
	return &InFlightRegistry{
		entries:   make(map[string]*inFlightEntry),
		retired:   make(map[string]time.Time),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register inserts a command without a timer.
func (r *InFlightRegistry) Register(cmd InFlightCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	if _, ok := r.entries[cmd.CommandID]; ok {
		return ErrDuplicateCommand
	}
	if _, ok := r.retired[cmd.CommandID]; ok {
		return ErrDuplicateCommand
	}
	r.entries[cmd.CommandID] = &inFlightEntry{command: cmd}
	return nil
}

// Arm starts the timeout timer of a registered command. It reports false when
// the command already left the registry.
func (r *InFlightRegistry) Arm(commandID string, timeout time.Duration, fire func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[commandID]
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(timeout, fire)
	return true
}

// Release drops a command that was never published; its id stays reusable.
func (r *InFlightRegistry) Release(commandID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[commandID]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(r.entries, commandID)
	}
}

// Remove takes a command out of the registry, cancels its timer and retires
// its id. deviceID, when set, must match the registered device.
func (r *InFlightRegistry) Remove(commandID, deviceID string) (InFlightCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[commandID]
	if !ok || (deviceID != "" && entry.command.DeviceID != deviceID) {
		return InFlightCommand{}, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(r.entries, commandID)
	r.retired[commandID] = r.now()
	return entry.command, true
}

// Lookup returns a registered command without removing it.
func (r *InFlightRegistry) Lookup(commandID, deviceID string) (InFlightCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[commandID]
	if !ok || (deviceID != "" && entry.command.DeviceID != deviceID) {
		return InFlightCommand{}, false
	}
	return entry.command, true
}

// Len returns the number of in-flight commands.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear cancels every timer and abandons all in-flight commands.
func (r *InFlightRegistry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := len(r.entries)
	now := r.now()
	for id, entry := range r.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		r.retired[id] = now
	}
	r.entries = make(map[string]*inFlightEntry)
	return count
}

func (r *InFlightRegistry) pruneLocked() {
	now := r.now()
	if now.Sub(r.lastPrune) < r.retention/4 {
		return
	}
	r.lastPrune = now
	cutoff := now.Add(-r.retention)
	for id, at := range r.retired {
		if at.Before(cutoff) {
			delete(r.retired, id)
		}
	}
}
