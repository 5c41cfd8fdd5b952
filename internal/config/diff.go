package config

import (
	"reflect"
	"sort"
	"strings"

	logx "opsnotify/pkg/logx"
)

// SummarizeConfigChange returns (1) a sorted list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens,
// passwords or DSNs).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Instance != newCfg.Instance {
		changed = append(changed, "instance")
		attrs = append(attrs,
			logx.String("instance.name", newCfg.Instance.Name),
			logx.String("instance.timezone", newCfg.Instance.Timezone),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Dispatcher != newCfg.Dispatcher {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.Int("dispatcher.workers", newCfg.Dispatcher.Workers),
			logx.String("dispatcher.attempt_timeout", strings.TrimSpace(newCfg.Dispatcher.AttemptTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Transports, newCfg.Transports) {
		changed = append(changed, "transports")
		attrs = append(attrs,
			logx.Bool("transports.email_set", newCfg.Transports.Email != nil),
			logx.Bool("transports.telegram_set", newCfg.Transports.Telegram != nil),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = strings.TrimSpace(newCfg.Storage.Driver)
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}

	if !reflect.DeepEqual(oldCfg.Channels, newCfg.Channels) {
		changed = append(changed, "channels")
		attrs = append(attrs, logx.Int("channels.count", len(newCfg.Channels)))
	}

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		enabled, addr, tokenSet := false, "", false
		if s := newCfg.Server; s != nil {
			enabled, addr, tokenSet = s.Enabled, strings.TrimSpace(s.Addr), strings.TrimSpace(s.Token) != ""
		}
		attrs = append(attrs,
			logx.Bool("server.enabled", enabled),
			logx.String("server.addr", addr),
			logx.Bool("server.token_set", tokenSet),
		)
	}

	if !reflect.DeepEqual(oldCfg.Kafka, newCfg.Kafka) {
		changed = append(changed, "kafka")
		enabled := newCfg.Kafka != nil && newCfg.Kafka.Enabled
		attrs = append(attrs, logx.Bool("kafka.enabled", enabled))
	}

	if !reflect.DeepEqual(oldCfg.Schedules, newCfg.Schedules) {
		changed = append(changed, "schedules")
		attrs = append(attrs, logx.Int("schedules.count", len(newCfg.Schedules)))
	}

	if oldCfg.NotifyOnStart != newCfg.NotifyOnStart {
		changed = append(changed, "notify_on_start")
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "transports", "storage", "server", "kafka":
			out = append(out, s)
		}
	}
	return out
}
