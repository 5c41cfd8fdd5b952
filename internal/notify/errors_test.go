package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		kind   ErrorKind
		status int
	}{
		{"unsupported", fmt.Errorf("%w: %q", ErrUnsupportedChannel, "sms"), ErrorUnsupportedChannel, 0},
		{"timeout", context.DeadlineExceeded, ErrorTimeout, 0},
		{"transport timeout", &TransportError{Channel: ChannelSlack, Err: context.DeadlineExceeded}, ErrorTimeout, 0},
		{"render", &RenderError{TemplateID: "generic", Err: errors.New("bad field")}, ErrorRender, 0},
		{"format", &FormatError{Channel: ChannelTelegram, Err: errors.New("bad chat")}, ErrorFormat, 0},
		{"transport with status", &TransportError{Channel: ChannelDiscord, Status: 429, Err: errors.New("rate limited")}, ErrorTransport, 429},
		{"untyped", errors.New("connection reset"), ErrorTransport, 0},
		{"panic", &panicError{value: "boom"}, ErrorInternal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, status := Classify(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestTransportErrorMessage(t *testing.T) {
	t.Parallel()

	err := &TransportError{Channel: ChannelDiscord, Status: 400, Err: errors.New("invalid embed")}
	assert.Equal(t, "discord transport: status 400: invalid embed", err.Error())
	assert.Equal(t, "slack transport: eof", (&TransportError{Channel: ChannelSlack, Err: errors.New("eof")}).Error())
}
