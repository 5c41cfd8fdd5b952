package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsnotify/internal/notify"
)

func TestObserveOutcome(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveOutcome(notify.EventServerRestarted, notify.DispatchOutcome{Kind: notify.ChannelDiscord, Status: notify.StatusSent, Took: 20 * time.Millisecond})
	m.ObserveOutcome(notify.EventServerRestarted, notify.DispatchOutcome{
		Kind:   notify.ChannelEmail,
		Status: notify.StatusFailed,
		Error:  &notify.ErrorDetail{Kind: notify.ErrorTimeout},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("server.restarted", "discord", "sent", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("server.restarted", "email", "failed", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.attemptD))
}

func TestObserveDispatchAndIngest(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveDispatch(notify.EventBuildFailed, 3, time.Second)
	m.ObserveDispatch(notify.EventBuildFailed, 0, time.Millisecond)
	m.Ingested("kafka", "invalid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("app.build_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingested.WithLabelValues("kafka", "invalid")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveDispatch(notify.EventServerRestarted, 1, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `opsnotify_dispatches_total{event="server.restarted"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
