package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) (notify.DispatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return notify.DispatchResult{EventID: ev.ID, Kind: ev.Kind}, r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestRunEmitsConfiguredEvent(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	s := New(n, logx.Nop())
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	payload := map[string]any{"message": "weekly prune"}
	err := s.Run(context.Background(), Entry{Name: "prune", Spec: "@weekly", Event: notify.EventDockerCleanup, Payload: payload})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(n.events) != 1 {
		t.Fatalf("events = %d, want 1", len(n.events))
	}
	ev := n.events[0]
	if ev.Kind != notify.EventDockerCleanup {
		t.Fatalf("Kind = %s, want %s", ev.Kind, notify.EventDockerCleanup)
	}
	if !ev.OccurredAt.Equal(at) {
		t.Fatalf("OccurredAt = %v, want %v", ev.OccurredAt, at)
	}
	if ev.Payload["message"] != "weekly prune" || ev.Payload["schedule"] != "prune" {
		t.Fatalf("Payload = %v", ev.Payload)
	}
	if _, ok := payload["schedule"]; ok {
		t.Fatal("Run mutated the configured payload")
	}
}

func TestRunReturnsNotifyError(t *testing.T) {
	t.Parallel()
	s := New(&recordingNotifier{err: errors.New("store down")}, logx.Nop())
	if err := s.Run(context.Background(), Entry{Name: "x", Event: "custom.ping"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyRejectsInvalidEntries(t *testing.T) {
	t.Parallel()
	s := New(&recordingNotifier{}, logx.Nop())
	good := Entry{Name: "hb", Spec: "10m", Event: "custom.heartbeat"}
	if err := s.Apply("", []Entry{good}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	tests := []struct {
		name    string
		tz      string
		entries []Entry
		want    string
	}{
		{"bad cron", "", []Entry{{Name: "a", Spec: "61 * * * *", Event: "x"}}, `schedule "a"`},
		{"duplicate", "", []Entry{good, good}, "duplicate"},
		{"no event", "", []Entry{{Name: "a", Spec: "1h"}}, "event kind required"},
		{"no name", "", []Entry{{Spec: "1h", Event: "x"}}, "name required"},
		{"bad tz", "Mars/Olympus", []Entry{good}, "timezone"},
	}
	for _, tt := range tests {
		err := s.Apply(tt.tz, tt.entries)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want containing %q", tt.name, err, tt.want)
		}
	}

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Name != "hb" || snap[0].Spec != "@every 10m0s" {
		t.Fatalf("Snapshot = %+v, want the previous entry kept", snap)
	}
}

func TestServiceFiresCronEntries(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	s := New(n, logx.Nop())
	if err := s.Apply("Europe/Berlin", []Entry{{Name: "tick", Spec: "* * * * * *", Event: "custom.tick"}}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Next.IsZero() {
		t.Fatalf("Snapshot = %+v, want a scheduled next run", snap)
	}
	if snap[0].Next.Location().String() != "Europe/Berlin" {
		t.Fatalf("Next location = %s, want Europe/Berlin", snap[0].Next.Location())
	}

	deadline := time.Now().Add(3 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if n.count() == 0 {
		t.Fatal("cron entry never fired")
	}
}

func TestSpreadScheduleFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(time.Minute, now, "hb")
	if jitter < 0 || jitter >= 30*time.Second {
		t.Fatalf("jitter = %v, want [0, 30s)", jitter)
	}
	first := sched.Next(now)
	if want := now.Add(time.Minute + jitter); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	want := first.Truncate(time.Second).Add(time.Minute)
	if second := sched.Next(first); !second.Equal(want) {
		t.Fatalf("second = %v, want %v", second, want)
	}
}
