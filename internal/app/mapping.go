package app

import (
	"errors"
	"net/http"
	"strings"

	"opsnotify/internal/config"
	"opsnotify/internal/ingest"
	"opsnotify/internal/notify"
	"opsnotify/internal/notify/channels"
	"opsnotify/internal/render"
	"opsnotify/internal/schedule"
	"opsnotify/internal/server"
	"opsnotify/internal/storage"
	logx "opsnotify/pkg/logx"
)

const defaultServerAddr = "127.0.0.1:8088"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapDispatcherConfig(cfg *config.Config) (notify.Config, error) {
	timeout, err := config.ParseDurationOrDefault("dispatcher.attempt_timeout", cfg.Dispatcher.AttemptTimeout, notify.DefaultAttemptTimeout)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{Workers: cfg.Dispatcher.Workers, AttemptTimeout: timeout}, nil
}

func mapComposer(cfg *config.Config) (*notify.Composer, error) {
	loc, err := config.ParseLocation("instance.timezone", cfg.Instance.Timezone)
	if err != nil {
		return nil, err
	}
	return notify.NewComposer(strings.TrimSpace(cfg.Instance.Name), notify.LayoutFormatter{
		Location:   loc,
		DateLayout: cfg.Instance.DateLayout,
		TimeLayout: cfg.Instance.TimeLayout,
	}), nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		Addr:        strings.TrimSpace(sc.Addr),
		Prefix:      sc.Prefix,
		BusyTimeout: busy,
	}, nil
}

func mapChannels(cfg *config.Config) ([]notify.ChannelConfig, error) {
	out := make([]notify.ChannelConfig, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		kind, err := notify.ParseChannelKind(c.Kind)
		if err != nil {
			return nil, err
		}
		events := make([]notify.EventKind, 0, len(c.Events))
		for _, e := range c.Events {
			events = append(events, notify.EventKind(strings.TrimSpace(e)))
		}
		out = append(out, notify.ChannelConfig{
			ID:            strings.TrimSpace(c.ID),
			Name:          c.Name,
			Kind:          kind,
			EnabledEvents: events,
			Destination:   strings.TrimSpace(c.Destination),
			Options: notify.PresentationOptions{
				Decoration:     c.Options.Decoration,
				SlackChannel:   c.Options.SlackChannel,
				ThreadID:       c.Options.ThreadID,
				DisablePreview: c.Options.DisablePreview,
			},
		})
	}
	return out, nil
}

func mapSchedules(cfg *config.Config) []schedule.Entry {
	out := make([]schedule.Entry, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		out = append(out, schedule.Entry{
			Name:    s.Name,
			Spec:    s.Spec,
			Event:   notify.EventKind(strings.TrimSpace(s.Event)),
			Payload: s.Payload,
		})
	}
	return out
}

// mapTransports builds the providers. Telegram and Email stay unregistered
// when their section is absent.
func mapTransports(cfg *config.Config) (channels.Transports, error) {
	timeout, err := config.ParseDurationOrDefault("transports.http.timeout", cfg.Transports.HTTP.Timeout, channels.DefaultHTTPTimeout)
	if err != nil {
		return channels.Transports{}, err
	}
	t := channels.Transports{HTTP: &http.Client{Timeout: timeout}}

	if tg := cfg.Transports.Telegram; tg != nil {
		tt, err := channels.NewTelegramTransport(channels.TelegramConfig{
			Token:  tg.Token,
			APIURL: tg.APIURL,
			Client: &http.Client{Timeout: timeout},
		})
		if err != nil {
			return channels.Transports{}, errors.New("transports.telegram: " + err.Error())
		}
		t.Telegram = tt
	}

	if ec := cfg.Transports.Email; ec != nil {
		mailer, err := channels.NewSMTPMailer(channels.SMTPConfig{
			Host:     ec.Host,
			Port:     ec.Port,
			Username: ec.Username,
			Password: ec.Password,
			From:     ec.From,
			FromName: ec.FromName,
		})
		if err != nil {
			return channels.Transports{}, errors.New("transports.email: " + err.Error())
		}
		engine, err := render.New()
		if err != nil {
			return channels.Transports{}, err
		}
		t.Email = channels.NewEmailTransport(engine, mailer)
	}
	return t, nil
}

func mapServerConfig(cfg *config.Config) (server.Config, bool) {
	sc := cfg.Server
	if sc == nil || !sc.Enabled {
		return server.Config{}, false
	}
	addr := strings.TrimSpace(sc.Addr)
	if addr == "" {
		addr = defaultServerAddr
	}
	return server.Config{Addr: addr, Token: strings.TrimSpace(sc.Token), RatePerSec: sc.RatePerSec, Burst: sc.Burst}, true
}

func mapKafkaConfig(cfg *config.Config) (ingest.Config, bool) {
	kc := cfg.Kafka
	if kc == nil || !kc.Enabled {
		return ingest.Config{}, false
	}
	return ingest.Config{Brokers: kc.Brokers, Topic: strings.TrimSpace(kc.Topic), GroupID: strings.TrimSpace(kc.GroupID)}, true
}

// validate extends config.Validate with checks that need the domain packages.
func validate(cfg *config.Config) error {
	errs := []error{config.Validate(cfg)}
	if cfg == nil {
		return errors.Join(errs...)
	}
	errs = append(errs, schedule.New(nil, logx.Logger{}).Validate(mapSchedules(cfg)))
	if _, err := mapChannels(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
