package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a channel attempt failed.
type ErrorKind string

const (
	// ErrorUnsupportedChannel: no formatter/transport registered for the channel kind.
	ErrorUnsupportedChannel ErrorKind = "unsupported_channel"
	// ErrorFormat: the formatter rejected the bundle or the channel config.
	ErrorFormat ErrorKind = "format_error"
	// ErrorRender: template rendering failed (email).
	ErrorRender ErrorKind = "render_error"
	// ErrorTransport: the provider call failed.
	ErrorTransport ErrorKind = "transport_error"
	// ErrorTimeout: the attempt exceeded its deadline.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorInternal: the attempt panicked.
	ErrorInternal ErrorKind = "internal"
)

var ErrUnsupportedChannel = errors.New("unsupported channel")

// RenderError wraps a template rendering failure.
type RenderError struct {
	TemplateID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %q: %v", e.TemplateID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// TransportError wraps a provider failure. Status is the provider's status
// code (HTTP, SMTP or Telegram API) when one is known.
type TransportError struct {
	Channel ChannelKind
	Status  int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s transport: status %d: %v", e.Channel, e.Status, e.Err)
	}
	return fmt.Sprintf("%s transport: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FormatError wraps a formatter failure.
type FormatError struct {
	Channel ChannelKind
	Err     error
}

func (e *FormatError) Error() string { return fmt.Sprintf("%s format: %v", e.Channel, e.Err) }

func (e *FormatError) Unwrap() error { return e.Err }

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// ErrorDetail is the serializable failure attached to a Failed outcome.
type ErrorDetail struct {
	Kind      ErrorKind   `json:"kind"`
	Channel   ChannelKind `json:"channel"`
	ChannelID string      `json:"channel_id"`
	Status    int         `json:"status,omitempty"`
	Message   string      `json:"message"`
}

func (d *ErrorDetail) Error() string {
	return fmt.Sprintf("%s %s (%s): %s", d.Channel, d.ChannelID, d.Kind, d.Message)
}

// Classify maps an attempt error onto the taxonomy. Unrecognized errors count
// as transport failures.
func Classify(err error) (ErrorKind, int) {
	var (
		pe     *panicError
		re     *RenderError
		fe     *FormatError
		te     *TransportError
		status int
	)
	if errors.As(err, &te) {
		status = te.Status
	}
	switch {
	case errors.As(err, &pe):
		return ErrorInternal, 0
	case errors.Is(err, ErrUnsupportedChannel):
		return ErrorUnsupportedChannel, 0
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout, status
	case errors.As(err, &re):
		return ErrorRender, 0
	case errors.As(err, &fe):
		return ErrorFormat, 0
	default:
		return ErrorTransport, status
	}
}

func detailFor(ch ChannelConfig, err error) *ErrorDetail {
	kind, status := Classify(err)
	return &ErrorDetail{
		Kind:      kind,
		Channel:   ch.Kind,
		ChannelID: ch.ID,
		Status:    status,
		Message:   err.Error(),
	}
}
