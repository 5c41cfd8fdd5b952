package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var restartAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestComposeDeterministic(t *testing.T) {
	t.Parallel()

	c := NewComposer("prod-1", LayoutFormatter{})
	ev := Event{ID: "e1", Kind: EventBuildFailed, OccurredAt: restartAt, Payload: map[string]any{
		"project_name":     "shop",
		"application_name": "api",
		"error_message":    "exit 1",
	}}

	first := c.Compose(ev)
	for range 20 {
		require.Equal(t, first, c.Compose(ev))
	}
}

func TestComposeServerRestarted(t *testing.T) {
	t.Parallel()

	c := NewComposer("prod-1", LayoutFormatter{})
	b := c.Compose(Event{ID: "e1", Kind: EventServerRestarted, OccurredAt: restartAt})

	assert.Equal(t, "prod-1 Server Restarted", b.Title)
	assert.Equal(t, SeveritySuccess, b.Severity)
	assert.Equal(t, 0x57F287, b.Color)
	require.Len(t, b.Fields, 3)

	assert.Equal(t, Field{Label: "Date", Value: "Jan 1, 2024", Inline: true, Kind: FieldDate, At: restartAt}, b.Fields[0])
	assert.Equal(t, Field{Label: "Time", Value: "12:00:00 AM", Inline: true, Kind: FieldTime, At: restartAt}, b.Fields[1])
	assert.Equal(t, Field{Label: "Type", Value: "Successful", Inline: true, Kind: FieldStatus}, b.Fields[2])
}

func TestComposeUsesLocationAndLayouts(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+7", 7*3600)
	c := NewComposer("", LayoutFormatter{Location: loc, DateLayout: "2006-01-02", TimeLayout: "15:04"})
	b := c.Compose(Event{Kind: EventServerRestarted, OccurredAt: restartAt})

	assert.Equal(t, "Server Restarted", b.Title)
	assert.Equal(t, "2024-01-01", b.Fields[0].Value)
	assert.Equal(t, "07:00", b.Fields[1].Value)
}

func TestComposeStampsMissingTimeFromClock(t *testing.T) {
	t.Parallel()

	c := NewComposer("", nil, WithClock(func() time.Time { return restartAt }))
	b := c.Compose(Event{Kind: EventDockerCleanup, Payload: map[string]any{"message": "freed 2GB"}})

	assert.Equal(t, restartAt, b.OccurredAt)
	require.Len(t, b.Fields, 3)
	assert.Equal(t, "freed 2GB", b.Fields[2].Value)
}

func TestComposeOmitsMissingAndNonScalarFields(t *testing.T) {
	t.Parallel()

	c := NewComposer("", nil)
	b := c.Compose(Event{Kind: EventBuildFailed, OccurredAt: restartAt, Payload: map[string]any{
		"project_name":     "shop",
		"application_name": map[string]any{"nested": true},
		"application_type": "   ",
		"build_link":       "https://ci.example.com/1",
	}})

	labels := make([]string, 0, len(b.Fields))
	for _, f := range b.Fields {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, []string{"Date", "Time", "Project", "Build Link"}, labels)
	assert.Equal(t, FieldLink, b.Fields[3].Kind)
	assert.Equal(t, SeverityError, b.Severity)
}

func TestComposeDatabaseBackupStatus(t *testing.T) {
	t.Parallel()

	c := NewComposer("", nil)
	tests := []struct {
		status string
		title  string
		sev    Severity
	}{
		{"success", "Database Backup Successful", SeveritySuccess},
		{"error", "Database Backup Failed", SeverityError},
		{"FAILED", "Database Backup Failed", SeverityError},
	}
	for _, tt := range tests {
		b := c.Compose(Event{Kind: EventDatabaseBackup, OccurredAt: restartAt, Payload: map[string]any{"status": tt.status}})
		assert.Equal(t, tt.title, b.Title, tt.status)
		assert.Equal(t, tt.sev, b.Severity, tt.status)
	}
}

func TestComposeUnknownKindIsGeneric(t *testing.T) {
	t.Parallel()

	c := NewComposer("", nil)
	b := c.Compose(Event{Kind: "disk.usage_high", OccurredAt: restartAt, Payload: map[string]any{
		"percent":   91.5,
		"mount":     "/var",
		"dashboard": "https://grafana.example.com/d/1",
		"tags":      []string{"a"},
	}})

	assert.Equal(t, "Disk Usage High", b.Title)
	assert.Equal(t, SeverityInfo, b.Severity)
	require.Len(t, b.Fields, 5)
	assert.Equal(t, Field{Label: "Dashboard", Value: "https://grafana.example.com/d/1", Inline: true, Kind: FieldLink}, b.Fields[2])
	assert.Equal(t, Field{Label: "Mount", Value: "/var", Inline: true, Kind: FieldText}, b.Fields[3])
	assert.Equal(t, Field{Label: "Percent", Value: "91.5", Inline: true, Kind: FieldText}, b.Fields[4])
}

func TestHumanize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Custom Thing", humanize("custom.thing"))
	assert.Equal(t, "Notification", humanize(""))
	assert.Equal(t, "Build Link", humanize("build_link"))
}
