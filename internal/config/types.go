package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// String values may reference environment variables as ${NAME}.
type Config struct {
	Instance   InstanceConfig   `json:"instance"`
	Logging    LoggingConfig    `json:"logging"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Transports TransportsConfig `json:"transports"`

	// Storage is the subscription store. Nil means in-memory.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Channels are upserted into the store at start and on every reload.
	Channels []ChannelConfig `json:"channels,omitempty"`

	Server    *ServerConfig    `json:"server,omitempty"`
	Kafka     *KafkaConfig     `json:"kafka,omitempty"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`

	// NotifyOnStart emits a server.restarted event once the service is up.
	NotifyOnStart bool `json:"notify_on_start,omitempty"`
}

// InstanceConfig controls how this deployment presents itself in messages.
type InstanceConfig struct {
	Name string `json:"name,omitempty"`
	// Timezone is an IANA name (e.g. "Europe/Berlin"). Default: UTC.
	Timezone   string `json:"timezone,omitempty"`
	DateLayout string `json:"date_layout,omitempty"` // default: "Jan 2, 2006"
	TimeLayout string `json:"time_layout,omitempty"` // default: "3:04:05 PM"
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatcherConfig bounds the per-event fan-out.
//
// Defaults (when fields are omitted/zero):
//   - workers: 8
//   - attempt_timeout: "10s"
type DispatcherConfig struct {
	Workers        int    `json:"workers,omitempty"`
	AttemptTimeout string `json:"attempt_timeout,omitempty"`
}

type TransportsConfig struct {
	Email    *EmailTransportConfig    `json:"email,omitempty"`
	Telegram *TelegramTransportConfig `json:"telegram,omitempty"`
	HTTP     HTTPTransportConfig      `json:"http"`
}

// EmailTransportConfig configures SMTP delivery. Password is never logged.
type EmailTransportConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
}

// TelegramTransportConfig configures the bot used for Telegram channels. Token is never logged.
type TelegramTransportConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty"`
}

// HTTPTransportConfig applies to webhook channels (Discord, Slack).
type HTTPTransportConfig struct {
	Timeout string `json:"timeout,omitempty"` // default: "10s"
}

// StorageConfig selects the subscription store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/opsnotify.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`         // file, sqlite
	DSN         string `json:"dsn,omitempty"`          // postgres (never logged)
	Addr        string `json:"addr,omitempty"`         // redis URL or host:port
	Prefix      string `json:"prefix,omitempty"`       // redis key prefix
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// ChannelConfig is a seed for one destination.
type ChannelConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Kind        string         `json:"kind"`
	Events      []string       `json:"events"`
	Destination string         `json:"destination"`
	Options     ChannelOptions `json:"options,omitempty"`
}

type ChannelOptions struct {
	Decoration     bool   `json:"decoration,omitempty"`
	SlackChannel   string `json:"slack_channel,omitempty"`
	ThreadID       int    `json:"thread_id,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

// ServerConfig controls the HTTP ingress.
//
// Security note: bind to localhost or set a token.
type ServerConfig struct {
	Enabled    bool    `json:"enabled"`
	Addr       string  `json:"addr,omitempty"`  // default: "127.0.0.1:8088"
	Token      string  `json:"token,omitempty"` // optional bearer token (do not log)
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	GroupID string   `json:"group_id,omitempty"` // default: "opsnotify"
}

// ScheduleConfig emits Event on Spec.
//
// Spec accepts cron ("*/5 * * * *", "@hourly"), a Go duration ("10m") or HH:MM ("02:30").
type ScheduleConfig struct {
	Name    string         `json:"name"`
	Spec    string         `json:"spec"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}
