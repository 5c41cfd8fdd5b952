package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsnotify/internal/config"
	"opsnotify/internal/notify"
	"opsnotify/internal/notify/channels"
	"opsnotify/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestMapChannelsAndSchedules(t *testing.T) {
	cfg := &config.Config{
		Channels: []config.ChannelConfig{{
			ID:          " ops ",
			Kind:        "Discord",
			Events:      []string{"server.restarted", " app.deployed "},
			Destination: "https://discord.test/hook",
			Options:     config.ChannelOptions{Decoration: true},
		}},
		Schedules: []config.ScheduleConfig{{Name: "hb", Spec: "10m", Event: " custom.heartbeat ", Payload: map[string]any{"message": "alive"}}},
	}

	chs, err := mapChannels(cfg)
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.Equal(t, "ops", chs[0].ID)
	assert.Equal(t, notify.ChannelDiscord, chs[0].Kind)
	assert.Equal(t, []notify.EventKind{notify.EventServerRestarted, notify.EventDeploySucceeded}, chs[0].EnabledEvents)
	assert.True(t, chs[0].Options.Decoration)

	entries := mapSchedules(cfg)
	require.Len(t, entries, 1)
	assert.Equal(t, notify.EventKind("custom.heartbeat"), entries[0].Event)
	assert.Equal(t, "alive", entries[0].Payload["message"])

	cfg.Channels[0].Kind = "pager"
	_, err = mapChannels(cfg)
	assert.Error(t, err)
}

func TestMapDefaults(t *testing.T) {
	cfg := &config.Config{}

	dcfg, err := mapDispatcherConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, notify.DefaultAttemptTimeout, dcfg.AttemptTimeout)

	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "memory", sc.Driver)

	_, ok := mapServerConfig(cfg)
	assert.False(t, ok)
	cfg.Server = &config.ServerConfig{Enabled: true}
	scfg, ok := mapServerConfig(cfg)
	assert.True(t, ok)
	assert.Equal(t, defaultServerAddr, scfg.Addr)

	_, ok = mapKafkaConfig(cfg)
	assert.False(t, ok)

	tr, err := mapTransports(cfg)
	require.NoError(t, err)
	assert.Equal(t, channels.DefaultHTTPTimeout, tr.HTTP.Timeout)
	assert.Nil(t, tr.Telegram)
	assert.Nil(t, tr.Email)

	cfg.Transports.Email = &config.EmailTransportConfig{Host: "smtp.test", Port: 587, From: "ops@example.com"}
	cfg.Transports.Telegram = &config.TelegramTransportConfig{Token: "123:abc", APIURL: "http://127.0.0.1:1"}
	tr, err = mapTransports(cfg)
	require.NoError(t, err)
	assert.NotNil(t, tr.Telegram)
	assert.NotNil(t, tr.Email)
}

func TestValidateChecksSchedules(t *testing.T) {
	cfg := &config.Config{Schedules: []config.ScheduleConfig{{Name: "bad", Spec: "99 * * * *", Event: "x"}}}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schedule "bad"`)

	cfg.Schedules[0].Spec = "@daily"
	assert.NoError(t, validate(cfg))
}

func TestAppNotifiesOnStart(t *testing.T) {
	hits := make(chan map[string]any, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		hits <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	path := writeConfig(t, fmt.Sprintf(`
instance:
  name: prod-1
logging:
  level: error
notify_on_start: true
channels:
  - id: ops-slack
    kind: slack
    events: [server.restarted]
    destination: %s
    options:
      slack_channel: "#ops"
`, hook.URL))

	a, err := NewApp(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	select {
	case body := <-hits:
		assert.Equal(t, "#ops", body["channel"])
		atts, _ := body["attachments"].([]any)
		require.Len(t, atts, 1)
		assert.Contains(t, atts[0].(map[string]any)["pretext"], "prod-1")
	case <-time.After(5 * time.Second):
		t.Fatal("start notification never reached the webhook")
	}

	res, err := a.Notifier().Dispatch(context.Background(), notify.NewEvent(notify.EventDockerCleanup, time.Time{}, nil))
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)

	ok, _ := a.health()
	assert.True(t, ok)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))
	<-a.Done()
}

func TestApplySeedsRemovesDroppedChannels(t *testing.T) {
	a := &App{store: storage.NewMemory(), seeded: map[string]struct{}{}}
	defer a.store.Close()
	ctx := context.Background()

	seed := func(ids ...string) *config.Config {
		cfg := &config.Config{}
		for _, id := range ids {
			cfg.Channels = append(cfg.Channels, config.ChannelConfig{
				ID: id, Kind: "discord", Events: []string{"server.restarted"}, Destination: "https://discord.test/" + id,
			})
		}
		return cfg
	}

	require.NoError(t, a.applySeeds(ctx, seed("a", "b")))
	// added through the admin API; never seeded, so never removed
	require.NoError(t, a.store.PutChannel(ctx, notify.ChannelConfig{ID: "manual", Kind: notify.ChannelSlack, Destination: "https://slack.test"}))

	require.NoError(t, a.applySeeds(ctx, seed("b")))

	all, err := a.store.ListChannels(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"b", "manual"}, ids)
}
