package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsnotify/internal/notify"
)

func bundle(kind notify.EventKind, payload map[string]any) notify.ContentBundle {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return notify.NewComposer("prod-1", nil).Compose(notify.Event{Kind: kind, OccurredAt: at, Payload: payload})
}

func TestEngineTemplates(t *testing.T) {
	t.Parallel()

	e, err := New()
	require.NoError(t, err)
	assert.Equal(t, []string{"generic", "server-restarted"}, e.IDs())
}

func TestRenderServerRestarted(t *testing.T) {
	t.Parallel()

	e, err := New()
	require.NoError(t, err)

	html, err := e.Render(context.Background(), "server-restarted", bundle(notify.EventServerRestarted, nil))
	require.NoError(t, err)
	assert.Contains(t, html, "<title>prod-1 Server Restarted</title>")
	assert.Contains(t, html, "<strong>prod-1</strong> restarted successfully")
	assert.Contains(t, html, "Jan 1, 2024")
	assert.Contains(t, html, "border-top:4px solid #57F287")
}

func TestRenderGenericEscapes(t *testing.T) {
	t.Parallel()

	e, err := New()
	require.NoError(t, err)

	html, err := e.Render(context.Background(), "generic", bundle(notify.EventBuildFailed, map[string]any{
		"application_name": "<script>alert(1)</script>",
		"build_link":       "https://ci.example.com/7",
		"error_message":    "exit 1",
	}))
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, `<a href="https://ci.example.com/7">`)
	assert.Contains(t, html, "A build failed")
}

func TestRenderErrors(t *testing.T) {
	t.Parallel()

	e, err := New()
	require.NoError(t, err)

	_, err = e.Render(context.Background(), "missing", notify.ContentBundle{})
	assert.ErrorContains(t, err, `unknown template "missing"`)

	_, err = e.Render(context.Background(), "generic", struct{}{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Render(ctx, "generic", notify.ContentBundle{})
	assert.ErrorIs(t, err, context.Canceled)
}
