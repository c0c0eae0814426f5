package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	commandsevents "fieldops-cloud/internal/commands/application/events"
	commands "fieldops-cloud/internal/commands/domain"
	"fieldops-cloud/internal/eventing"
	"fieldops-cloud/internal/eventing/eventbus"
	eventingrepo "fieldops-cloud/internal/eventing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestOutbox_DeliversAndMarksSent(t *testing.T) {
	db := openDB(t)
	defer db.Close()
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(commandsevents.CommandStatusChanged{})
	store := eventingrepo.NewOutboxStore(db)
	dispatcher := eventing.NewDispatcher(bus, store, registry, log.New(io.Discard, "", 0))
	publisher := eventing.NewPublisher(store, dispatcher, "tenant-test")

	var received []commandsevents.CommandStatusChanged
	eventbus.On(bus, func(ctx context.Context, evt commandsevents.CommandStatusChanged) error {
		env, ok := eventing.EnvelopeFromContext(ctx)
		if !ok || env.CorrelationID != evt.CommandID {
			t.Errorf("unexpected envelope: %+v", env)
		}
		received = append(received, evt)
		return nil
	})

	event := commandsevents.CommandStatusChanged{
		CommandID:  "cmd-outbox-1",
		DeviceID:   "rtu-001",
		Status:     commands.StatusCompleted,
		Terminal:   true,
		OccurredAt: time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(received) != 1 || received[0].Status != commands.StatusCompleted {
		t.Fatalf("unexpected deliveries: %+v", received)
	}

	var status, deviceID string
	if err := db.QueryRowContext(ctx, "SELECT status, device_id FROM event_outbox WHERE correlation_id = $1", "cmd-outbox-1").Scan(&status, &deviceID); err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	if status != "sent" || deviceID != "rtu-001" {
		t.Fatalf("unexpected outbox row: status=%s device=%s", status, deviceID)
	}
}

func TestOutbox_FailedHandlerParksRecord(t *testing.T) {
	db := openDB(t)
	defer db.Close()
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(commandsevents.DeviceStatusReported{})
	store := eventingrepo.NewOutboxStore(db)
	dispatcher := eventing.NewDispatcher(bus, store, registry, log.New(io.Discard, "", 0))
	publisher := eventing.NewPublisher(store, dispatcher, "tenant-test")

	eventbus.On(bus, func(context.Context, commandsevents.DeviceStatusReported) error {
		return errors.New("boom")
	})
	if err := publisher.Publish(ctx, commandsevents.DeviceStatusReported{DeviceID: "rtu-002"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var status string
	var attempts int
	var lastError sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT status, attempts, last_error FROM event_outbox WHERE device_id = $1", "rtu-002").Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	if status != "failed" || attempts != 1 || lastError.String == "" {
		t.Fatalf("unexpected outbox row: status=%s attempts=%d err=%q", status, attempts, lastError.String)
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	dir, _ := os.Getwd()
	content, err := os.ReadFile(filepath.Join(dir, "..", "..", "..", "migrations", "004_event_outbox.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Exec(string(content)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return db
}
