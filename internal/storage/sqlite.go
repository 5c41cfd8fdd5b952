package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

// sqliteDSN carries the pragmas in the DSN so the driver applies them to every
// connection it opens, not only the first one.
func sqliteDSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	for _, p := range []string{
		fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
	} {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

const sqliteColumns = `c.id, c.name, c.kind, c.destination, c.events, c.options`

func (s *sqliteStore) ListChannelsForEvent(ctx context.Context, kind notify.EventKind) ([]notify.ChannelConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM channels c
		 JOIN channel_events e ON e.channel_id = c.id
		 WHERE e.event = ? ORDER BY c.id`, string(kind))
	if err != nil {
		return nil, err
	}
	return scanSQLiteRows(rows)
}

func (s *sqliteStore) ListChannels(ctx context.Context) ([]notify.ChannelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM channels c ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	return scanSQLiteRows(rows)
}

func (s *sqliteStore) GetChannel(ctx context.Context, id string) (notify.ChannelConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM channels c WHERE c.id = ?`, strings.TrimSpace(id))
	c, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.ChannelConfig{}, ErrNotFound
	}
	return c, err
}

func (s *sqliteStore) PutChannel(ctx context.Context, cfg notify.ChannelConfig) error {
	cfg, err := normalize(cfg)
	if err != nil {
		return err
	}
	events, options, err := encodeColumns(cfg)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels(id, name, kind, destination, events, options, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, kind=excluded.kind, destination=excluded.destination,
		   events=excluded.events, options=excluded.options, updated_at=excluded.updated_at`,
		cfg.ID, cfg.Name, string(cfg.Kind), cfg.Destination, string(events), string(options),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_events WHERE channel_id = ?`, cfg.ID); err != nil {
		return err
	}
	for _, e := range cfg.EnabledEvents {
		if _, err := tx.ExecContext(ctx, `INSERT INTO channel_events(event, channel_id) VALUES(?,?)`, string(e), cfg.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(r rowScanner) (notify.ChannelConfig, error) {
	var (
		c               notify.ChannelConfig
		kind            string
		events, options string
	)
	if err := r.Scan(&c.ID, &c.Name, &kind, &c.Destination, &events, &options); err != nil {
		return notify.ChannelConfig{}, err
	}
	c.Kind = notify.ChannelKind(kind)
	if err := decodeColumns(&c, []byte(events), []byte(options)); err != nil {
		return notify.ChannelConfig{}, fmt.Errorf("channel %q: %w", c.ID, err)
	}
	return c, nil
}

func scanSQLiteRows(rows *sql.Rows) ([]notify.ChannelConfig, error) {
	defer rows.Close()
	out := []notify.ChannelConfig{}
	for rows.Next() {
		c, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func encodeColumns(cfg notify.ChannelConfig) (events, options []byte, err error) {
	if events, err = json.Marshal(cfg.EnabledEvents); err != nil {
		return nil, nil, err
	}
	if options, err = json.Marshal(cfg.Options); err != nil {
		return nil, nil, err
	}
	return events, options, nil
}

func decodeColumns(c *notify.ChannelConfig, events, options []byte) error {
	if len(events) > 0 {
		if err := json.Unmarshal(events, &c.EnabledEvents); err != nil {
			return fmt.Errorf("decode events: %w", err)
		}
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &c.Options); err != nil {
			return fmt.Errorf("decode options: %w", err)
		}
	}
	return nil
}
