package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsnotify/internal/notify"
	"opsnotify/internal/storage"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, ev notify.Event) (notify.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return notify.DispatchResult{}, f.err
	}
	return notify.DispatchResult{
		EventID: ev.ID,
		Kind:    ev.Kind,
		Outcomes: []notify.DispatchOutcome{
			{ChannelID: "ops", Kind: notify.ChannelSlack, Status: notify.StatusSent},
		},
	}, nil
}

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg Config, n Notifier) (*Server, storage.Store, *[]string) {
	t.Helper()
	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	var ingested []string
	s := New(cfg, Deps{
		Notifier: n,
		Store:    st,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "opsnotify_up 1\n")
		}),
		Health:   func() (bool, any) { return true, map[string]string{"server": "running"} },
		Ingested: func(source, result string) { ingested = append(ingested, source+":"+result) },
		Now:      func() time.Time { return fixedNow },
	})
	return s, st, &ingested
}

func do(t *testing.T, s *Server, method, path, body string, hdr map[string]string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPostEvent(t *testing.T) {
	n := &fakeNotifier{}
	s, _, ingested := newTestServer(t, Config{}, n)

	resp := do(t, s, http.MethodPost, "/v1/events",
		`{"id":"ev-1","kind":"server.restarted","payload":{"server_name":"web-1"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	res := decode[notify.DispatchResult](t, resp)
	assert.Equal(t, "ev-1", res.EventID)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, notify.StatusSent, res.Outcomes[0].Status)

	require.Len(t, n.events, 1)
	assert.Equal(t, notify.EventServerRestarted, n.events[0].Kind)
	assert.Equal(t, fixedNow, n.events[0].OccurredAt)
	assert.Equal(t, []string{"http:ok"}, *ingested)
}

func TestPostEventRejectsBadBody(t *testing.T) {
	n := &fakeNotifier{}
	s, _, ingested := newTestServer(t, Config{}, n)

	for _, body := range []string{`{`, `{"payload":{}}`, `{"kind":"x","extra":1}`} {
		resp := do(t, s, http.MethodPost, "/v1/events", body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		msg := decode[map[string]string](t, resp)
		assert.NotEmpty(t, msg["error"])
	}
	assert.Empty(t, n.events)
	assert.Equal(t, []string{"http:invalid", "http:invalid", "http:invalid"}, *ingested)
}

func TestPostEventStoreUnavailable(t *testing.T) {
	n := &fakeNotifier{err: errors.New("dial tcp: connection refused")}
	s, _, ingested := newTestServer(t, Config{}, n)

	resp := do(t, s, http.MethodPost, "/v1/events", `{"kind":"server.restarted"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	msg := decode[map[string]string](t, resp)
	assert.NotContains(t, msg["error"], "connection refused")
	assert.Equal(t, []string{"http:error"}, *ingested)
}

func TestBearerAuth(t *testing.T) {
	s, _, _ := newTestServer(t, Config{Token: "s3cret"}, &fakeNotifier{})

	tests := []struct {
		name string
		hdr  map[string]string
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"scheme", map[string]string{"Authorization": "s3cret"}, http.StatusUnauthorized},
		{"ok", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, s, http.MethodGet, "/v1/channels", "", tt.hdr)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	// health and metrics stay open
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "", nil).StatusCode)
	resp := do(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "opsnotify_up 1")
}

func TestRateLimit(t *testing.T) {
	s, _, _ := newTestServer(t, Config{RatePerSec: 0.001, Burst: 2}, &fakeNotifier{})

	codes := make([]int, 0, 3)
	for range 3 {
		resp := do(t, s, http.MethodPost, "/v1/events", `{"kind":"server.restarted"}`, nil)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// admin routes are not throttled
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/channels", "", nil).StatusCode)
}

func TestChannelCRUD(t *testing.T) {
	s, st, _ := newTestServer(t, Config{}, &fakeNotifier{})

	resp := do(t, s, http.MethodGet, "/v1/channels/ops", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, s, http.MethodPut, "/v1/channels/ops",
		`{"kind":"Slack","destination":"https://hooks.slack.test/x","enabled_events":["server.restarted","server.restarted"]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[notify.ChannelConfig](t, resp)
	assert.Equal(t, "ops", saved.ID)
	assert.Equal(t, notify.ChannelSlack, saved.Kind)
	assert.Equal(t, []notify.EventKind{notify.EventServerRestarted}, saved.EnabledEvents)

	got, err := st.GetChannel(context.Background(), "ops")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	// Later requests must not rewrite the stored id through a reused buffer.
	for i := 0; i < 30; i++ {
		other := strings.Repeat(string(rune('a'+i%26)), 3)
		do(t, s, http.MethodGet, "/v1/channels/"+other, "", nil)
		do(t, s, http.MethodDelete, "/v1/channels/"+other, "", nil)
	}
	all, err := st.ListChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ops", all[0].ID)
	_, err = st.GetChannel(context.Background(), "ops")
	require.NoError(t, err)

	resp = do(t, s, http.MethodGet, "/v1/channels", "", nil)
	list := decode[struct {
		Channels []notify.ChannelConfig `json:"channels"`
	}](t, resp)
	require.Len(t, list.Channels, 1)

	resp = do(t, s, http.MethodDelete, "/v1/channels/ops", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, s, http.MethodDelete, "/v1/channels/ops", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutChannelValidation(t *testing.T) {
	s, _, _ := newTestServer(t, Config{}, &fakeNotifier{})

	tests := []struct {
		name string
		body string
	}{
		{"id mismatch", `{"id":"other","kind":"slack","destination":"https://x"}`},
		{"unknown kind", `{"kind":"pager","destination":"https://x"}`},
		{"no destination", `{"kind":"discord"}`},
		{"unknown field", `{"kind":"slack","destination":"https://x","color":"red"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, s, http.MethodPut, "/v1/channels/ops", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHealthDegraded(t *testing.T) {
	s, _, _ := newTestServer(t, Config{}, &fakeNotifier{})
	s.deps.Health = func() (bool, any) { return false, "ingest restarting" }

	resp := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "degraded", body["status"])
}
