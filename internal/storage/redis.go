package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

const defaultRedisPrefix = "opsnotify:"

// redisStore layout, under prefix:
//
//	channel:<id>   JSON channel config
//	channels       set of ids
//	event:<kind>   set of ids subscribed to kind
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	var opt *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		if opt, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	} else {
		opt = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Debug("redis store opened", logx.String("addr", opt.Addr), logx.Int("db", opt.DB))
	return newRedisStore(rdb, cfg.Prefix, log), nil
}

func newRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *redisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{rdb: rdb, prefix: prefix, log: log}
}

func (s *redisStore) channelKey(id string) string        { return s.prefix + "channel:" + id }
func (s *redisStore) eventKey(k notify.EventKind) string { return s.prefix + "event:" + string(k) }
func (s *redisStore) indexKey() string                   { return s.prefix + "channels" }

func (s *redisStore) ListChannelsForEvent(ctx context.Context, kind notify.EventKind) ([]notify.ChannelConfig, error) {
	ids, err := s.rdb.SMembers(ctx, s.eventKey(kind)).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *redisStore) ListChannels(ctx context.Context) ([]notify.ChannelConfig, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

// load fetches ids with MGET. Ids whose value vanished between the set read
// and the fetch are skipped.
func (s *redisStore) load(ctx context.Context, ids []string) ([]notify.ChannelConfig, error) {
	out := make([]notify.ChannelConfig, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.channelKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var c notify.ChannelConfig
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode channel %q: %w", ids[i], err)
		}
		out = append(out, c)
	}
	sortByID(out)
	return out, nil
}

func (s *redisStore) GetChannel(ctx context.Context, id string) (notify.ChannelConfig, error) {
	c, err := s.get(ctx, strings.TrimSpace(id))
	if err != nil {
		return notify.ChannelConfig{}, err
	}
	return c, nil
}

func (s *redisStore) get(ctx context.Context, id string) (notify.ChannelConfig, error) {
	return s.getFrom(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisStore) getFrom(ctx context.Context, g getter, id string) (notify.ChannelConfig, error) {
	raw, err := g.Get(ctx, s.channelKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return notify.ChannelConfig{}, ErrNotFound
	}
	if err != nil {
		return notify.ChannelConfig{}, err
	}
	var c notify.ChannelConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return notify.ChannelConfig{}, fmt.Errorf("decode channel %q: %w", id, err)
	}
	return c, nil
}

func (s *redisStore) PutChannel(ctx context.Context, cfg notify.ChannelConfig) error {
	cfg, err := normalize(cfg)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.watched(ctx, cfg.ID, func(tx *redis.Tx) error {
		old, err := s.getFrom(ctx, tx, cfg.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, e := range old.EnabledEvents {
				p.SRem(ctx, s.eventKey(e), cfg.ID)
			}
			p.Set(ctx, s.channelKey(cfg.ID), raw, 0)
			p.SAdd(ctx, s.indexKey(), cfg.ID)
			for _, e := range cfg.EnabledEvents {
				p.SAdd(ctx, s.eventKey(e), cfg.ID)
			}
			return nil
		})
		return err
	})
}

func (s *redisStore) DeleteChannel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	return s.watched(ctx, id, func(tx *redis.Tx) error {
		old, err := s.getFrom(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, e := range old.EnabledEvents {
				p.SRem(ctx, s.eventKey(e), id)
			}
			p.Del(ctx, s.channelKey(id))
			p.SRem(ctx, s.indexKey(), id)
			return nil
		})
		return err
	})
}

const maxTxRetries = 16

// watched runs fn under WATCH on the channel key so the event sets are rewritten
// from the value fn read. It retries when another writer got there first.
func (s *redisStore) watched(ctx context.Context, id string, fn func(tx *redis.Tx) error) error {
	for range maxTxRetries {
		err := s.rdb.Watch(ctx, fn, s.channelKey(id))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("channel %q: %w", id, redis.TxFailedErr)
}

func (s *redisStore) Close() error { return s.rdb.Close() }
