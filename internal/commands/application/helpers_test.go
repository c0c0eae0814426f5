package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

type published struct {
	topic   string
	payload []byte
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	fail      error
	messages  []published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true}
}

func (t *fakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

func (t *fakeTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.messages = append(t.messages, published{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *fakeTransport) published() []published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]published(nil), t.messages...)
}

type recordingReconciler struct {
	mu   sync.Mutex
	acks []commands.Acknowledgment
}

func (r *recordingReconciler) Reconcile(ctx context.Context, ack commands.Acknowledgment) {
	r.mu.Lock()
	r.acks = append(r.acks, ack)
	r.mu.Unlock()
}

func (r *recordingReconciler) all() []commands.Acknowledgment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]commands.Acknowledgment(nil), r.acks...)
}

func (r *recordingReconciler) countFor(commandID string) int {
	count := 0
	for _, ack := range r.all() {
		if ack.CommandID == commandID {
			count++
		}
	}
	return count
}

type recordingEvents struct {
	mu     sync.Mutex
	events []any
	fail   error
}

func (e *recordingEvents) Publish(ctx context.Context, event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.fail
}

func (e *recordingEvents) all() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]any(nil), e.events...)
}

type stubStore struct {
	mu        sync.Mutex
	records   map[string]*commands.Command
	updates   []commands.StatusUpdate
	updateErr error
	createErr error
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*commands.Command)}
}

func (s *stubStore) CreateCommand(ctx context.Context, cmd *commands.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	copied := *cmd
	s.records[cmd.CommandID] = &copied
	return cmd.CommandID, nil
}

func (s *stubStore) MarkSent(ctx context.Context, commandID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.records[commandID]
	if !ok {
		return errors.New("not found")
	}
	if cmd.Status == commands.StatusPending {
		cmd.Status = commands.StatusSent
		cmd.SentAt = sentAt
	}
	return nil
}

func (s *stubStore) UpdateCommandStatus(ctx context.Context, update commands.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, update)
	if cmd, ok := s.records[update.CommandID]; ok {
		cmd.Status = update.Status
		cmd.Message = update.Message
	}
	return nil
}

func (s *stubStore) GetCommand(ctx context.Context, commandID string) (*commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.records[commandID]
	if !ok {
		return nil, nil
	}
	copied := *cmd
	return &copied, nil
}

func (s *stubStore) ListByDevice(ctx context.Context, deviceID string, limit int) ([]commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []commands.Command
	for _, cmd := range s.records {
		if cmd.DeviceID == deviceID {
			out = append(out, *cmd)
		}
	}
	return out, nil
}

func (s *stubStore) status(commandID string) commands.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd, ok := s.records[commandID]; ok {
		return cmd.Status
	}
	return ""
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testEnvelope(commandID string) commands.Envelope {
	return commands.Envelope{
		CommandID: commandID,
		DeviceID:  "pump-01",
		Type:      commands.TypePumpStart,
		Timestamp: time.Now().UTC(),
		Priority:  commands.PriorityNormal,
	}
}

type harness struct {
	transport  *fakeTransport
	registry   *InFlightRegistry
	reconciler *recordingReconciler
	events     *recordingEvents
	dispatcher *Dispatcher
	correlator *Correlator
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		transport:  newFakeTransport(),
		registry:   NewInFlightRegistry(time.Hour),
		reconciler: &recordingReconciler{},
		events:     &recordingEvents{},
	}
	dispatcher, err := NewDispatcher(h.transport, h.registry, h.reconciler, h.events, DispatcherConfig{
		CommandTimeout: timeout,
		PublishTimeout: time.Second,
		Topics:         commands.NewTopics("devices"),
	}, quietLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	correlator, err := NewCorrelator(h.registry, h.reconciler, h.events, quietLogger())
	if err != nil {
		t.Fatalf("new correlator: %v", err)
	}
	h.dispatcher = dispatcher
	h.correlator = correlator
	t.Cleanup(dispatcher.Shutdown)
	return h
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
