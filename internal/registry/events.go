package registry

import (
	"time"

	"github.com/google/uuid"
)

// Event names published by the registry.
const (
	EventRegister    = "register"
	EventReplace     = "replace"
	EventEvict       = "evict"
	EventUnload      = "unload"
	EventHistoryDrop = "history_drop"
)

// Event represents a registry lifecycle event.
// Minimal and stable: name + model and optional fields via key/values.
type Event struct {
	ID      string
	Name    string
	Model   string
	Version string
	Time    time.Time
	Fields  map[string]any
}

// EventPublisher receives events from the registry. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func (r *Registry) newEvent(name string, info ModelInfo, fields map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Name:    name,
		Model:   info.Name,
		Version: info.Version,
		Time:    r.now(),
		Fields:  fields,
	}
}

func (r *Registry) publish(events []Event) {
	for _, ev := range events {
		r.pub.Publish(ev)
	}
}
