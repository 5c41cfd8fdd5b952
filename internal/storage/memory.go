package storage

import (
	"context"
	"strings"
	"sync"

	"opsnotify/internal/notify"
)

type memoryStore struct {
	mu       sync.RWMutex
	channels map[string]notify.ChannelConfig
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{channels: map[string]notify.ChannelConfig{}}
}

func (s *memoryStore) ListChannelsForEvent(_ context.Context, kind notify.EventKind) ([]notify.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.ChannelConfig, 0, len(s.channels))
	for _, c := range s.channels {
		if c.Subscribed(kind) {
			out = append(out, clone(c))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *memoryStore) ListChannels(context.Context) ([]notify.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.ChannelConfig, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, clone(c))
	}
	sortByID(out)
	return out, nil
}

func (s *memoryStore) GetChannel(_ context.Context, id string) (notify.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[strings.TrimSpace(id)]
	if !ok {
		return notify.ChannelConfig{}, ErrNotFound
	}
	return clone(c), nil
}

func (s *memoryStore) PutChannel(_ context.Context, cfg notify.ChannelConfig) error {
	cfg, err := normalize(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels == nil {
		return ErrClosed
	}
	s.channels[cfg.ID] = cfg
	return nil
}

func (s *memoryStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.channels[id]; !ok {
		return ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.channels = nil
	s.mu.Unlock()
	return nil
}
