package notify

import "time"

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Color is the RGB accent for the severity.
func (s Severity) Color() int {
	switch s {
	case SeveritySuccess:
		return 0x57F287
	case SeverityWarning:
		return 0xFEE75C
	case SeverityError:
		return 0xED4245
	default:
		return 0x5865F2
	}
}

// FieldKind tells formatters how a value may be presented.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldDate   FieldKind = "date"
	FieldTime   FieldKind = "time"
	FieldStatus FieldKind = "status"
	FieldLink   FieldKind = "link"
	FieldError  FieldKind = "error"
)

// Field is one labeled value. At is set for date and time fields so formatters
// can render client-local timestamps.
type Field struct {
	Label  string    `json:"label"`
	Value  string    `json:"value"`
	Inline bool      `json:"inline"`
	Kind   FieldKind `json:"kind"`
	At     time.Time `json:"at,omitzero"`
}

// ContentBundle is the channel-agnostic message for one event.
type ContentBundle struct {
	EventID    string    `json:"event_id"`
	Kind       EventKind `json:"kind"`
	Instance   string    `json:"instance,omitempty"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Severity   Severity  `json:"severity"`
	Color      int       `json:"color"`
	Fields     []Field   `json:"fields"`
}
