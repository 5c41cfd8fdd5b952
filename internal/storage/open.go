package storage

import (
	"context"
	"errors"
	"strings"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

// Open initializes the configured store. An empty driver means memory.
// ctx bounds connecting and schema setup only.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	switch driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	case "redis":
		return openRedis(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Seed upserts cfgs into st. It stops at the first failure.
func Seed(ctx context.Context, st Store, cfgs []notify.ChannelConfig) error {
	for _, c := range cfgs {
		if err := st.PutChannel(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
