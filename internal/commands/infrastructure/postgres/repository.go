package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

const selectCommandColumns = `
SELECT command_id, tenant_id, device_id, template_name, command_type, payload, priority,
	status, message, execution_data, created_at, sent_at, updated_at, completed_at
FROM commands`

// CommandRepository is a Postgres implementation for command records.
type CommandRepository struct {
	db *sql.DB
}

// NewCommandRepository constructs a repository.
func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// CreateCommand inserts a PENDING command and returns its id.
func (r *CommandRepository) CreateCommand(ctx context.Context, cmd *commands.Command) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("command repo: nil db")
	}
	if cmd == nil || cmd.CommandID == "" {
		return "", errors.New("command repo: command id required")
	}
	data, err := cmd.ExecutionData.MarshalJSON()
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO commands (
	command_id, tenant_id, device_id, template_name, command_type, payload, priority,
	status, message, execution_data, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)`, cmd.CommandID, cmd.TenantID, cmd.DeviceID, nullString(cmd.TemplateName), string(cmd.CommandType),
		string(cmd.Payload), string(cmd.Priority), string(cmd.Status), nullString(cmd.Message), data,
		cmd.CreatedAt, cmd.UpdatedAt)
	if err != nil {
		return "", err
	}
	return cmd.CommandID, nil
}

// MarkSent moves a PENDING command to SENT. A command that already advanced is left alone.
func (r *CommandRepository) MarkSent(ctx context.Context, commandID string, sentAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, sent_at = $2, updated_at = $2
WHERE command_id = $3 AND status = $4`, string(commands.StatusSent), sentAt, commandID, string(commands.StatusPending))
	return err
}

// UpdateCommandStatus applies an acknowledgment outcome. Terminal records are never overwritten.
func (r *CommandRepository) UpdateCommandStatus(ctx context.Context, update commands.StatusUpdate) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	data, err := update.ExecutionData.MarshalJSON()
	if err != nil {
		return err
	}
	var completedAt sql.NullTime
	if update.Status.IsTerminal() {
		completedAt = sql.NullTime{Time: update.Timestamp, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, message = $2, execution_data = $3, updated_at = $4,
	completed_at = COALESCE($5, completed_at)
WHERE command_id = $6 AND status NOT IN ('COMPLETED', 'FAILED', 'TIMEOUT')`,
		string(update.Status), nullString(update.Message), data, update.Timestamp, completedAt, update.CommandID)
	if err != nil {
		return err
	}
	if count, _ := result.RowsAffected(); count > 0 {
		return nil
	}
	existing, err := r.GetCommand(ctx, update.CommandID)
	if err != nil {
		return err
	}
	if existing == nil {
		return commands.ErrCommandNotFound
	}
	return nil
}

// GetCommand fetches a command by id; nil when missing.
func (r *CommandRepository) GetCommand(ctx context.Context, commandID string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectCommandColumns+`
WHERE command_id = $1`, commandID)
	return scanCommand(row)
}

// ListByDevice returns the latest commands of a device, newest first.
func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectCommandColumns+`
WHERE device_id = $1
ORDER BY created_at DESC
LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []commands.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*commands.Command, error) {
	var cmd commands.Command
	var templateName, message sql.NullString
	var commandType, priority, status, payload string
	var data []byte
	var sentAt, completedAt sql.NullTime
	if err := row.Scan(
		&cmd.CommandID,
		&cmd.TenantID,
		&cmd.DeviceID,
		&templateName,
		&commandType,
		&payload,
		&priority,
		&status,
		&message,
		&data,
		&cmd.CreatedAt,
		&sentAt,
		&cmd.UpdatedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cmd.TemplateName = templateName.String
	cmd.CommandType = commands.CommandType(commandType)
	cmd.Payload = []byte(payload)
	cmd.Priority = commands.Priority(priority)
	cmd.Status = commands.Status(status)
	cmd.Message = message.String
	if len(data) > 0 {
		if err := cmd.ExecutionData.UnmarshalJSON(data); err != nil {
			return nil, err
		}
	}
	cmd.CreatedAt = cmd.CreatedAt.UTC()
	cmd.UpdatedAt = cmd.UpdatedAt.UTC()
	if sentAt.Valid {
		cmd.SentAt = sentAt.Time.UTC()
	}
	if completedAt.Valid {
		cmd.CompletedAt = completedAt.Time.UTC()
	}
	return &cmd, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
