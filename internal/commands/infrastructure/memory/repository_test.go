package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

func TestCommandLifecycle(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	id, err := repo.CreateCommand(ctx, &commands.Command{
		CommandID: "cmd-1",
		DeviceID:  "pump-01",
		Status:    commands.StatusPending,
		Payload:   []byte("START"),
		CreatedAt: created,
	})
	if err != nil || id != "cmd-1" {
		t.Fatalf("create: %v %s", err, id)
	}

	// An ack can land before MarkSent; SENT must not overwrite it.
	if err := repo.UpdateCommandStatus(ctx, commands.StatusUpdate{CommandID: "cmd-1", Status: commands.StatusReceived, Timestamp: created}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.MarkSent(ctx, "cmd-1", created); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	cmd, _ := repo.GetCommand(ctx, "cmd-1")
	if cmd.Status != commands.StatusReceived {
		t.Fatalf("expected RECEIVED, got %s", cmd.Status)
	}

	done := created.Add(time.Minute)
	if err := repo.UpdateCommandStatus(ctx, commands.StatusUpdate{CommandID: "cmd-1", Status: commands.StatusCompleted, Timestamp: done}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.UpdateCommandStatus(ctx, commands.StatusUpdate{CommandID: "cmd-1", Status: commands.StatusExecuting, Timestamp: done}); err != nil {
		t.Fatalf("late update: %v", err)
	}
	cmd, _ = repo.GetCommand(ctx, "cmd-1")
	if cmd.Status != commands.StatusCompleted || !cmd.CompletedAt.Equal(done) {
		t.Fatalf("expected terminal COMPLETED to stick, got %+v", cmd)
	}

	if err := repo.UpdateCommandStatus(ctx, commands.StatusUpdate{CommandID: "missing", Status: commands.StatusFailed}); !errors.Is(err, commands.ErrCommandNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByDeviceNewestFirst(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_, _ = repo.CreateCommand(ctx, &commands.Command{CommandID: id, DeviceID: "pump-01", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	_, _ = repo.CreateCommand(ctx, &commands.Command{CommandID: "x", DeviceID: "pump-02", CreatedAt: base})

	list, err := repo.ListByDevice(ctx, "pump-01", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].CommandID != "c" || list[1].CommandID != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
}
