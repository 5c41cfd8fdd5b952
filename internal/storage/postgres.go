package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

//go:embed schema_postgres.sql
var postgresSchema string

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Debug("postgres store opened", logx.String("host", pcfg.ConnConfig.Host), logx.String("database", pcfg.ConnConfig.Database))
	return &postgresStore{pool: pool, log: log}, nil
}

const postgresColumns = `id, name, kind, destination, events, options`

func (s *postgresStore) ListChannelsForEvent(ctx context.Context, kind notify.EventKind) ([]notify.ChannelConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresColumns+` FROM notify_channels WHERE $1 = ANY(events) ORDER BY id`, string(kind))
	if err != nil {
		return nil, err
	}
	return collectPostgres(rows)
}

func (s *postgresStore) ListChannels(ctx context.Context) ([]notify.ChannelConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresColumns+` FROM notify_channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectPostgres(rows)
}

func (s *postgresStore) GetChannel(ctx context.Context, id string) (notify.ChannelConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresColumns+` FROM notify_channels WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return notify.ChannelConfig{}, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanPostgres)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.ChannelConfig{}, ErrNotFound
	}
	return c, err
}

func (s *postgresStore) PutChannel(ctx context.Context, cfg notify.ChannelConfig) error {
	cfg, err := normalize(cfg)
	if err != nil {
		return err
	}
	options, err := json.Marshal(cfg.Options)
	if err != nil {
		return err
	}
	events := make([]string, len(cfg.EnabledEvents))
	for i, e := range cfg.EnabledEvents {
		events[i] = string(e)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO notify_channels(id, name, kind, destination, events, options, updated_at)
		 VALUES($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, kind = EXCLUDED.kind, destination = EXCLUDED.destination,
		   events = EXCLUDED.events, options = EXCLUDED.options, updated_at = now()`,
		cfg.ID, cfg.Name, string(cfg.Kind), cfg.Destination, events, options,
	)
	return err
}

func (s *postgresStore) DeleteChannel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notify_channels WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgres(row pgx.CollectableRow) (notify.ChannelConfig, error) {
	var (
		c       notify.ChannelConfig
		kind    string
		events  []string
		options []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &kind, &c.Destination, &events, &options); err != nil {
		return notify.ChannelConfig{}, err
	}
	c.Kind = notify.ChannelKind(kind)
	c.EnabledEvents = make([]notify.EventKind, len(events))
	for i, e := range events {
		c.EnabledEvents[i] = notify.EventKind(e)
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &c.Options); err != nil {
			return notify.ChannelConfig{}, fmt.Errorf("channel %q: decode options: %w", c.ID, err)
		}
	}
	return c, nil
}

func collectPostgres(rows pgx.Rows) ([]notify.ChannelConfig, error) {
	out, err := pgx.CollectRows(rows, scanPostgres)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []notify.ChannelConfig{}
	}
	return out, nil
}
