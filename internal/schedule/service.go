// Package schedule emits configured events on cron or interval specs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"maps"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

const (
	maxStartupSpread = 30 * time.Second
	defaultTimeout   = time.Minute
)

// Entry emits Event with Payload on Spec.
type Entry struct {
	Name    string
	Spec    string
	Event   notify.EventKind
	Payload map[string]any
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) (notify.DispatchResult, error)
}

// EntryStatus is a snapshot row for one registered entry.
type EntryStatus struct {
	Name  string           `json:"name"`
	Spec  string           `json:"spec"`
	Event notify.EventKind `json:"event"`
	Next  time.Time        `json:"next,omitempty"`
	Prev  time.Time        `json:"prev,omitempty"`
}

type registered struct {
	entry   Entry
	spec    Spec
	entryID cron.EntryID
	running atomic.Bool
}

type Service struct {
	notifier Notifier
	log      logx.Logger
	parser   cron.Parser
	now      func() time.Time
	timeout  time.Duration

	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	entries []*registered
}

func New(n Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		notifier: n,
		log:      log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:     time.Now,
		timeout: defaultTimeout,
		loc:     time.UTC,
	}
}

// Validate parses every entry without registering anything.
func (s *Service) Validate(entries []Entry) error {
	_, err := s.compile(entries)
	return err
}

func (s *Service) compile(entries []Entry) ([]*registered, error) {
	var errs []error
	out := make([]*registered, 0, len(entries))
	seen := map[string]struct{}{}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			errs = append(errs, errors.New("schedule name required"))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("schedule %q: duplicate name", name))
			continue
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(string(e.Event)) == "" {
			errs = append(errs, fmt.Errorf("schedule %q: event kind required", name))
			continue
		}
		spec, err := ParseSpec(e.Spec)
		if err == nil && spec.Kind == SpecCron {
			_, err = s.parser.Parse(spec.Cron)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", name, err))
			continue
		}
		e.Name = name
		e.Payload = maps.Clone(e.Payload)
		out = append(out, &registered{entry: e, spec: spec})
	}
	return out, errors.Join(errs...)
}

// Apply replaces the registered entries and the timezone. Nothing changes when
// any entry is invalid. A running service is restarted in place.
func (s *Service) Apply(tz string, entries []Entry) error {
	regs, err := s.compile(entries)
	if err != nil {
		return err
	}
	loc := time.UTC
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule timezone: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = regs
	s.loc = loc
	if s.c != nil {
		s.restartLocked()
	}
	return nil
}

func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop halts triggering and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running jobs")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) startLocked() {
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, r := range s.entries {
		if err := s.addLocked(r); err != nil {
			s.log.Error("schedule register failed", logx.String("name", r.entry.Name), logx.String("spec", r.spec.Expr()), logx.Err(err))
			continue
		}
		fields := []logx.Field{logx.String("name", r.entry.Name), logx.String("spec", r.spec.Expr()), logx.String("event", string(r.entry.Event))}
		if next := s.previewNextRunsLocked(r.spec, 3); next != "" {
			fields = append(fields, logx.String("next", next))
		}
		s.log.Debug("schedule registered", fields...)
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

func (s *Service) addLocked(r *registered) error {
	job := cron.FuncJob(func() { s.fire(r) })
	if r.spec.Kind == SpecInterval {
		sched, _ := intervalWithSpread(r.spec.Every, time.Now().In(s.loc), r.entry.Name)
		r.entryID = s.c.Schedule(sched, job)
		return nil
	}
	id, err := s.c.AddJob(r.spec.Cron, job)
	if err != nil {
		return err
	}
	r.entryID = id
	return nil
}

// fire skips a run while the previous one for the same entry is still in flight.
func (s *Service) fire(r *registered) {
	if !r.running.CompareAndSwap(false, true) {
		s.log.Warn("schedule still running; skipped", logx.String("name", r.entry.Name))
		return
	}
	defer r.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.Run(ctx, r.entry); err != nil {
		s.log.Error("scheduled event failed", logx.String("name", r.entry.Name), logx.Err(err))
	}
}

// Run emits one event for e immediately.
func (s *Service) Run(ctx context.Context, e Entry) error {
	payload := maps.Clone(e.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	payload["schedule"] = e.Name
	ev := notify.NewEvent(e.Event, s.now(), payload)
	res, err := s.notifier.Notify(ctx, ev)
	if err != nil {
		return err
	}
	s.log.Debug("scheduled event dispatched",
		logx.String("name", e.Name),
		logx.String("event_id", ev.ID),
		logx.Int("sent", res.Sent()),
		logx.Int("failed", res.Failed()),
	)
	return nil
}

// Snapshot lists the registered entries with their next and previous runs.
func (s *Service) Snapshot() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryStatus, 0, len(s.entries))
	for _, r := range s.entries {
		st := EntryStatus{Name: r.entry.Name, Spec: r.spec.Expr(), Event: r.entry.Event}
		if s.c != nil && r.entryID != 0 {
			ce := s.c.Entry(r.entryID)
			st.Next, st.Prev = ce.Next, ce.Prev
		}
		out = append(out, st)
	}
	return out
}

func (s *Service) previewNextRunsLocked(spec Spec, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || spec.Kind != SpecCron {
		return ""
	}
	sched, err := s.parser.Parse(spec.Cron)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// spreadSchedule overrides the first run of an interval so entries registered
// together do not all fire on the same tick.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

func intervalWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spread := min(every, maxStartupSpread)
	if spread <= 0 {
		return base, 0
	}
	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	jitter := time.Duration(rand.New(rand.NewSource(seed)).Int63n(int64(spread)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
