package config

import (
	"errors"
	"fmt"
	"strings"

	logx "opsnotify/pkg/logx"
)

var channelKinds = map[string]struct{}{
	"email":    {},
	"discord":  {},
	"telegram": {},
	"slack":    {},
}

var storageDrivers = map[string]struct{}{
	"":         {},
	"none":     {},
	"memory":   {},
	"file":     {},
	"sqlite":   {},
	"sqlite3":  {},
	"postgres": {},
	"redis":    {},
}

// Validate checks everything that can be checked without touching the network.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if _, err := ParseLocation("instance.timezone", cfg.Instance.Timezone); err != nil {
		errs = append(errs, err)
	}
	if cfg.Dispatcher.Workers < 0 {
		add("dispatcher.workers: must be >= 0")
	}
	if _, err := ParseDurationField("dispatcher.attempt_timeout", cfg.Dispatcher.AttemptTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("transports.http.timeout", cfg.Transports.HTTP.Timeout); err != nil {
		errs = append(errs, err)
	}
	if e := cfg.Transports.Email; e != nil {
		if strings.TrimSpace(e.Host) == "" {
			add("transports.email.host is required")
		}
		if e.Port <= 0 || e.Port > 65535 {
			add("transports.email.port: invalid port %d", e.Port)
		}
		if strings.TrimSpace(e.From) == "" {
			add("transports.email.from is required")
		}
	}
	if tg := cfg.Transports.Telegram; tg != nil && strings.TrimSpace(tg.Token) == "" {
		add("transports.telegram.token is required")
	}

	errs = append(errs, validateStorage(cfg.Storage)...)
	errs = append(errs, validateChannels(cfg.Channels)...)

	if s := cfg.Server; s != nil && s.Enabled {
		if s.RatePerSec < 0 {
			add("server.rate_per_sec: must be >= 0")
		}
		if s.Burst < 0 {
			add("server.burst: must be >= 0")
		}
	}
	if k := cfg.Kafka; k != nil && k.Enabled {
		if len(k.Brokers) == 0 {
			add("kafka.brokers: at least one broker is required")
		}
		if strings.TrimSpace(k.Topic) == "" {
			add("kafka.topic is required")
		}
	}

	names := map[string]struct{}{}
	for i, s := range cfg.Schedules {
		path := fmt.Sprintf("schedules[%d]", i)
		name := strings.TrimSpace(s.Name)
		if name == "" {
			add("%s.name is required", path)
		} else if _, dup := names[name]; dup {
			add("%s.name: duplicate %q", path, name)
		}
		names[name] = struct{}{}
		if strings.TrimSpace(s.Spec) == "" {
			add("%s.spec is required", path)
		}
		if strings.TrimSpace(s.Event) == "" {
			add("%s.event is required", path)
		}
	}

	return errors.Join(errs...)
}

func validateStorage(sc *StorageConfig) []error {
	if sc == nil {
		return nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if _, ok := storageDrivers[driver]; !ok {
		return []error{fmt.Errorf("storage.driver: unknown driver %q", sc.Driver)}
	}
	var errs []error
	switch driver {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", driver))
		}
	case "postgres":
		if strings.TrimSpace(sc.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required when storage.driver=postgres"))
		}
	case "redis":
		if strings.TrimSpace(sc.Addr) == "" {
			errs = append(errs, errors.New("storage.addr is required when storage.driver=redis"))
		}
	}
	if _, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validateChannels(chs []ChannelConfig) []error {
	var errs []error
	seen := map[string]struct{}{}
	for i, ch := range chs {
		path := fmt.Sprintf("channels[%d]", i)
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", path))
		} else if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%s.id: duplicate %q", path, id))
		}
		seen[id] = struct{}{}
		if _, ok := channelKinds[strings.ToLower(strings.TrimSpace(ch.Kind))]; !ok {
			errs = append(errs, fmt.Errorf("%s.kind: unknown channel kind %q", path, ch.Kind))
		}
		if strings.TrimSpace(ch.Destination) == "" {
			errs = append(errs, fmt.Errorf("%s.destination is required", path))
		}
	}
	return errs
}
