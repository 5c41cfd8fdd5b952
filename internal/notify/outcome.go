package notify

import "time"

type OutcomeStatus string

const (
	StatusSent   OutcomeStatus = "sent"
	StatusFailed OutcomeStatus = "failed"
)

// DispatchOutcome is the result of one channel attempt.
type DispatchOutcome struct {
	ChannelID   string        `json:"channel_id"`
	ChannelName string        `json:"channel_name,omitempty"`
	Kind        ChannelKind   `json:"kind"`
	Status      OutcomeStatus `json:"status"`
	Error       *ErrorDetail  `json:"error,omitempty"`
	Took        time.Duration `json:"took"`
}

// DispatchResult holds one outcome per selected channel, in no particular order.
type DispatchResult struct {
	EventID  string            `json:"event_id"`
	Kind     EventKind         `json:"kind"`
	Outcomes []DispatchOutcome `json:"outcomes"`
}

func (r DispatchResult) Sent() int { return r.count(StatusSent) }

func (r DispatchResult) Failed() int { return r.count(StatusFailed) }

func (r DispatchResult) count(s OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for a channel id.
func (r DispatchResult) Outcome(channelID string) (DispatchOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.ChannelID == channelID {
			return o, true
		}
	}
	return DispatchOutcome{}, false
}

// OutcomeEvent is published on the event bus for every finished attempt.
type OutcomeEvent struct {
	EventID   string          `json:"event_id"`
	EventKind EventKind       `json:"event_kind"`
	Outcome   DispatchOutcome `json:"outcome"`
}
