package audit

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"
)

// Repository writes audit logs to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = withDefaults(entry)
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, tenant_id, actor, role, action, resource_type, resource_id, device_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, entry.ID, entry.TenantID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.DeviceID,
		entry.Metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// LogWriter writes audit entries to a standard logger. Used when no database is configured.
type LogWriter struct {
	Logger *log.Logger
}

// Log prints the entry.
func (w LogWriter) Log(ctx context.Context, entry Entry) error {
	logger := w.Logger
	if logger == nil {
		logger = log.Default()
	}
	entry = withDefaults(entry)
	logger.Printf("audit: action=%s resource=%s/%s tenant=%s actor=%s role=%s ip=%s metadata=%s",
		entry.Action, entry.ResourceType, entry.ResourceID, entry.TenantID, entry.Actor, entry.Role, entry.IP, string(entry.Metadata))
	return nil
}

func withDefaults(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return entry
}
