package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

// CommandRepository keeps command records in process memory.
type CommandRepository struct {
	mu      sync.RWMutex
	records map[string]commands.Command
}

// NewCommandRepository constructs an empty repository.
func NewCommandRepository() *CommandRepository {
	return &CommandRepository{records: make(map[string]commands.Command)}
}

// CreateCommand stores a new command.
func (r *CommandRepository) CreateCommand(ctx context.Context, cmd *commands.Command) (string, error) {
	if cmd == nil || cmd.CommandID == "" {
		return "", errors.New("command repo: command id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[cmd.CommandID]; ok {
		return "", errors.New("command repo: duplicate command id")
	}
	r.records[cmd.CommandID] = cloneCommand(*cmd)
	return cmd.CommandID, nil
}

// MarkSent moves a PENDING command to SENT.
func (r *CommandRepository) MarkSent(ctx context.Context, commandID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.records[commandID]
	if !ok {
		return commands.ErrCommandNotFound
	}
	if cmd.Status != commands.StatusPending {
		return nil
	}
	cmd.Status = commands.StatusSent
	cmd.SentAt = sentAt
	cmd.UpdatedAt = sentAt
	r.records[commandID] = cmd
	return nil
}

// UpdateCommandStatus applies an outcome unless the command is already terminal.
func (r *CommandRepository) UpdateCommandStatus(ctx context.Context, update commands.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.records[update.CommandID]
	if !ok {
		return commands.ErrCommandNotFound
	}
	if cmd.Status.IsTerminal() {
		return nil
	}
	cmd.Status = update.Status
	cmd.Message = update.Message
	cmd.ExecutionData = update.ExecutionData
	cmd.UpdatedAt = update.Timestamp
	if update.Status.IsTerminal() {
		cmd.CompletedAt = update.Timestamp
	}
	r.records[update.CommandID] = cmd
	return nil
}

// GetCommand returns a copy of a command; nil when missing.
func (r *CommandRepository) GetCommand(ctx context.Context, commandID string) (*commands.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.records[commandID]
	if !ok {
		return nil, nil
	}
	copied := cloneCommand(cmd)
	return &copied, nil
}

// ListByDevice returns the latest commands of a device, newest first.
func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]commands.Command, error) {
	r.mu.RLock()
	var result []commands.Command
	for _, cmd := range r.records {
		if cmd.DeviceID == deviceID {
			result = append(result, cloneCommand(cmd))
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CommandID > result[j].CommandID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneCommand(cmd commands.Command) commands.Command {
	cmd.Payload = append([]byte(nil), cmd.Payload...)
	return cmd
}
