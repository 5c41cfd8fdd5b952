package notify

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	DefaultDateLayout = "Jan 2, 2006"
	DefaultTimeLayout = "3:04:05 PM"
)

// TimeFormatter renders wall-clock values for humans.
type TimeFormatter interface {
	FormatDate(t time.Time) string
	FormatTime(t time.Time) string
}

// LayoutFormatter formats with Go layouts in Location (UTC when nil).
type LayoutFormatter struct {
	Location   *time.Location
	DateLayout string
	TimeLayout string
}

func (f LayoutFormatter) in(t time.Time) time.Time {
	if f.Location == nil {
		return t.UTC()
	}
	return t.In(f.Location)
}

func (f LayoutFormatter) FormatDate(t time.Time) string {
	layout := f.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	return f.in(t).Format(layout)
}

func (f LayoutFormatter) FormatTime(t time.Time) string {
	layout := f.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return f.in(t).Format(layout)
}

// Composer turns events into content bundles. Compose never fails and has
// no side effects; the clock is only read for events without OccurredAt.
type Composer struct {
	instance string
	format   TimeFormatter
	now      func() time.Time
}

type ComposerOption func(*Composer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ComposerOption {
	return func(c *Composer) {
		if now != nil {
			c.now = now
		}
	}
}

func NewComposer(instance string, format TimeFormatter, opts ...ComposerOption) *Composer {
	if format == nil {
		format = LayoutFormatter{}
	}
	c := &Composer{instance: strings.TrimSpace(instance), format: format, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Composer) Instance() string { return c.instance }

// Compose builds the bundle: Date and Time first, then the kind's fields.
// Missing or non-scalar payload values drop their field.
func (c *Composer) Compose(ev Event) ContentBundle {
	at := ev.OccurredAt
	if at.IsZero() {
		at = c.now()
	}

	spec, known := layouts[ev.Kind]
	if !known {
		spec = genericLayout(ev.Kind)
	}

	sev := spec.severity
	if spec.severityOf != nil {
		sev = spec.severityOf(ev)
	}
	title := spec.title
	if spec.titleOf != nil {
		title = spec.titleOf(ev)
	}
	if spec.withInstance && c.instance != "" {
		title = c.instance + " " + title
	}

	fields := make([]Field, 0, 2+len(spec.fields))
	fields = append(fields,
		Field{Label: "Date", Value: c.format.FormatDate(at), Inline: true, Kind: FieldDate, At: at},
		Field{Label: "Time", Value: c.format.FormatTime(at), Inline: true, Kind: FieldTime, At: at},
	)
	if known {
		fields = append(fields, layoutFields(spec.fields, ev)...)
	} else {
		fields = append(fields, genericFields(ev)...)
	}

	return ContentBundle{
		EventID:    ev.ID,
		Kind:       ev.Kind,
		Instance:   c.instance,
		Title:      title,
		Summary:    spec.summary,
		OccurredAt: at,
		Severity:   sev,
		Color:      sev.Color(),
		Fields:     fields,
	}
}

type fieldSpec struct {
	key    string
	label  string
	static string // used instead of the payload when set
	kind   FieldKind
	inline bool
}

type layout struct {
	title        string
	titleOf      func(Event) string
	withInstance bool
	summary      string
	severity     Severity
	severityOf   func(Event) Severity
	fields       []fieldSpec
}

var layouts = map[EventKind]layout{
	EventServerRestarted: {
		title:        "Server Restarted",
		withInstance: true,
		severity:     SeveritySuccess,
		fields: []fieldSpec{
			{label: "Type", static: "Successful", kind: FieldStatus, inline: true},
		},
	},
	EventBuildFailed: {
		title:    "Build Failed",
		summary:  "A build failed and the application was not deployed.",
		severity: SeverityError,
		fields: []fieldSpec{
			{key: "project_name", label: "Project", kind: FieldText, inline: true},
			{key: "application_name", label: "Application", kind: FieldText, inline: true},
			{key: "application_type", label: "Type", kind: FieldText, inline: true},
			{key: "error_message", label: "Error", kind: FieldError},
			{key: "build_link", label: "Build Link", kind: FieldLink},
		},
	},
	EventDeploySucceeded: {
		title:    "Deployment Succeeded",
		severity: SeveritySuccess,
		fields: []fieldSpec{
			{key: "project_name", label: "Project", kind: FieldText, inline: true},
			{key: "application_name", label: "Application", kind: FieldText, inline: true},
			{key: "application_type", label: "Type", kind: FieldText, inline: true},
			{key: "build_link", label: "Build Link", kind: FieldLink},
		},
	},
	EventDatabaseBackup: {
		titleOf: func(ev Event) string {
			if backupFailed(ev) {
				return "Database Backup Failed"
			}
			return "Database Backup Successful"
		},
		severityOf: func(ev Event) Severity {
			if backupFailed(ev) {
				return SeverityError
			}
			return SeveritySuccess
		},
		fields: []fieldSpec{
			{key: "project_name", label: "Project", kind: FieldText, inline: true},
			{key: "application_name", label: "Application", kind: FieldText, inline: true},
			{key: "database_type", label: "Database Type", kind: FieldText, inline: true},
			{key: "status", label: "Status", kind: FieldStatus, inline: true},
			{key: "error_message", label: "Error", kind: FieldError},
		},
	},
	EventDockerCleanup: {
		title:    "Docker Cleanup",
		severity: SeverityInfo,
		fields: []fieldSpec{
			{key: "message", label: "Message", kind: FieldText},
		},
	},
}

func backupFailed(ev Event) bool {
	v, _ := scalarString(ev.Payload["status"])
	return strings.EqualFold(v, "error") || strings.EqualFold(v, "failed")
}

func layoutFields(specs []fieldSpec, ev Event) []Field {
	out := make([]Field, 0, len(specs))
	for _, fs := range specs {
		val := fs.static
		if val == "" {
			v, ok := scalarString(ev.Payload[fs.key])
			if !ok {
				continue
			}
			val = v
		}
		out = append(out, Field{Label: fs.label, Value: val, Inline: fs.inline, Kind: fs.kind})
	}
	return out
}

func genericLayout(kind EventKind) layout {
	return layout{title: humanize(string(kind)), severity: SeverityInfo}
}

// genericFields renders every scalar payload value, ordered by key.
func genericFields(ev Event) []Field {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		v, ok := scalarString(ev.Payload[k])
		if !ok {
			continue
		}
		kind := FieldText
		if strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "http://") {
			kind = FieldLink
		}
		out = append(out, Field{Label: humanize(k), Value: v, Inline: true, Kind: kind})
	}
	return out
}

// scalarString renders strings, numbers, bools and times. Empty strings,
// nil and composite values report false.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), x != ""
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.UTC().Format(time.RFC3339), true
	default:
		return "", false
	}
}

// humanize turns "app.disk_usage" into "App Disk Usage".
func humanize(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return "Notification"
	}
	return strings.Join(words, " ")
}
