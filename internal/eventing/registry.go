package eventing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"fieldops-cloud/internal/eventing/eventbus"
)

// Registry maps event type names to the Go types payloads decode into.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register records the concrete type of event.
func (r *Registry) Register(event any) {
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[eventbus.EventType(event)] = t
}

// DecodePayload rebuilds the event value carried by env.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventing: unregistered event type %q", env.EventType)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	return target.Elem().Interface(), nil
}
