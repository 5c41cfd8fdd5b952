// Package ingest consumes events from Kafka and hands them to the dispatcher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

const DefaultGroupID = "opsnotify"

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("at least one kafka broker is required"))
	}
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("kafka topic is required"))
	}
	return errors.Join(errs...)
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) (notify.DispatchResult, error)
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Option func(*Consumer)

func WithLogger(log logx.Logger) Option { return func(c *Consumer) { c.log = log } }

// WithIngested reports every message as "ok", "invalid" or "error".
func WithIngested(fn func(source, result string)) Option {
	return func(c *Consumer) { c.ingested = fn }
}

// WithReader replaces the kafka reader, mainly for tests.
func WithReader(r MessageReader) Option { return func(c *Consumer) { c.reader = r } }

type Consumer struct {
	cfg      Config
	reader   MessageReader
	notifier Notifier
	log      logx.Logger
	ingested func(source, result string)
	now      func() time.Time
}

func NewConsumer(cfg Config, n Notifier, opts ...Option) (*Consumer, error) {
	if n == nil {
		return nil, errors.New("ingest: notifier is required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultGroupID
	}
	c := &Consumer{cfg: cfg, notifier: n, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.ingested == nil {
		c.ingested = func(string, string) {}
	}
	if c.reader == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
	}
	return c, nil
}

// Run reads until ctx is done. Read errors other than cancellation are returned
// so the supervisor can restart the consumer with backoff.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("kafka consumer started", logx.String("topic", c.cfg.Topic), logx.String("group", c.cfg.GroupID))
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.log.With(
		logx.Int("partition", msg.Partition),
		logx.Int64("offset", msg.Offset),
	)
	ev, err := notify.DecodeEvent(msg.Value, c.now())
	if err != nil {
		c.ingested("kafka", "invalid")
		log.Warn("skipping undecodable message", logx.Err(err))
		return
	}
	if _, err := c.notifier.Notify(ctx, ev); err != nil {
		c.ingested("kafka", "error")
		log.Error("event not dispatched", logx.String("event_id", ev.ID), logx.Err(err))
		return
	}
	c.ingested("kafka", "ok")
}

func (c *Consumer) Close() error { return c.reader.Close() }
