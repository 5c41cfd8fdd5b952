package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"opsnotify/internal/notify"
)

var (
	ErrNotFound = errors.New("channel not found")
	ErrInvalid  = errors.New("invalid channel")
	ErrClosed   = errors.New("store closed")
)

// Config configures storage. Path is used by file and sqlite, DSN by postgres,
// Addr and Prefix by redis.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Addr        string
	Prefix      string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists channel configs. Lists are ordered by id.
type Store interface {
	ListChannelsForEvent(ctx context.Context, kind notify.EventKind) ([]notify.ChannelConfig, error)
	ListChannels(ctx context.Context) ([]notify.ChannelConfig, error)
	GetChannel(ctx context.Context, id string) (notify.ChannelConfig, error)
	// PutChannel inserts or replaces the channel with cfg.ID.
	PutChannel(ctx context.Context, cfg notify.ChannelConfig) error
	DeleteChannel(ctx context.Context, id string) error
	Close() error
}

// normalize validates cfg and returns it with trimmed id and sorted, unique events.
func normalize(cfg notify.ChannelConfig) (notify.ChannelConfig, error) {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Destination = strings.TrimSpace(cfg.Destination)
	kind, err := notify.ParseChannelKind(string(cfg.Kind))
	if err == nil {
		cfg.Kind = kind
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w %q: %w", ErrInvalid, cfg.ID, err)
	}

	events := make([]notify.EventKind, 0, len(cfg.EnabledEvents))
	for _, e := range cfg.EnabledEvents {
		e = notify.EventKind(strings.TrimSpace(string(e)))
		if e != "" {
			events = append(events, e)
		}
	}
	slices.Sort(events)
	cfg.EnabledEvents = slices.Compact(events)
	return cfg, nil
}

func sortByID(cfgs []notify.ChannelConfig) {
	slices.SortFunc(cfgs, func(a, b notify.ChannelConfig) int { return strings.Compare(a.ID, b.ID) })
}

func clone(cfg notify.ChannelConfig) notify.ChannelConfig {
	cfg.EnabledEvents = slices.Clone(cfg.EnabledEvents)
	return cfg
}
