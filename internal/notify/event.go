package notify

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind is an open set; kinds without a dedicated layout are composed generically.
type EventKind string

const (
	EventServerRestarted EventKind = "server.restarted"
	EventBuildFailed     EventKind = "app.build_failed"
	EventDeploySucceeded EventKind = "app.deployed"
	EventDatabaseBackup  EventKind = "database.backup"
	EventDockerCleanup   EventKind = "docker.cleanup"
)

// KnownEventKinds lists kinds with a dedicated layout.
func KnownEventKinds() []EventKind {
	return []EventKind{
		EventServerRestarted,
		EventBuildFailed,
		EventDeploySucceeded,
		EventDatabaseBackup,
		EventDockerCleanup,
	}
}

func (k EventKind) String() string { return string(k) }

// Event is an occurrence worth telling operators about. Treat it as immutable;
// NewEvent copies the payload it is given.
type Event struct {
	ID         string         `json:"id"`
	Kind       EventKind      `json:"kind"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh id. A zero at is left zero; the
// composer then stamps it with its clock.
func NewEvent(kind EventKind, at time.Time, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       EventKind(strings.TrimSpace(string(kind))),
		OccurredAt: at,
		Payload:    maps.Clone(payload),
	}
}

// Value returns a payload value.
func (e Event) Value(key string) (any, bool) {
	v, ok := e.Payload[key]
	return v, ok
}
