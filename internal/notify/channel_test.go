package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelKind(t *testing.T) {
	t.Parallel()

	k, err := ParseChannelKind(" Discord ")
	require.NoError(t, err)
	assert.Equal(t, ChannelDiscord, k)

	_, err = ParseChannelKind("sms")
	assert.Error(t, err)
}

func TestChannelConfigSubscribed(t *testing.T) {
	t.Parallel()

	c := ChannelConfig{ID: "x", Kind: ChannelSlack, Destination: "https://hooks", EnabledEvents: []EventKind{EventServerRestarted}}
	assert.True(t, c.Subscribed(EventServerRestarted))
	assert.False(t, c.Subscribed(EventBuildFailed))
	assert.NoError(t, c.Validate())
}

func TestChannelConfigValidate(t *testing.T) {
	t.Parallel()

	err := ChannelConfig{Kind: "pager"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel id is required")
	assert.Contains(t, err.Error(), `unknown channel kind "pager"`)
	assert.Contains(t, err.Error(), "channel destination is required")
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(ChannelSlack, titleFormatter(ChannelSlack), &recordingTransport{})
	r.Register(ChannelDiscord, titleFormatter(ChannelDiscord), &recordingTransport{})
	assert.Equal(t, []ChannelKind{ChannelDiscord, ChannelSlack}, r.Kinds())

	r.Register(ChannelSlack, nil, nil)
	_, ok := r.Lookup(ChannelSlack)
	assert.False(t, ok)
}
