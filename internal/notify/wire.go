package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// eventWire is the JSON accepted from HTTP and Kafka producers.
type eventWire struct {
	ID         string         `json:"id"`
	Kind       EventKind      `json:"kind"`
	OccurredAt *time.Time     `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// DecodeEvent parses one JSON event. Unknown fields are rejected; a missing id
// gets a fresh one and a missing occurred_at is set to now. Numbers in the
// payload are kept as json.Number so they render exactly as sent.
func DecodeEvent(data []byte, now time.Time) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var w eventWire
	if err := dec.Decode(&w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if dec.More() {
		return Event{}, errors.New("decode event: trailing data")
	}

	kind := EventKind(strings.TrimSpace(string(w.Kind)))
	if kind == "" {
		return Event{}, errors.New("event kind is required")
	}
	ev := Event{ID: strings.TrimSpace(w.ID), Kind: kind, OccurredAt: now, Payload: w.Payload}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if w.OccurredAt != nil && !w.OccurredAt.IsZero() {
		ev.OccurredAt = *w.OccurredAt
	}
	return ev, nil
}
