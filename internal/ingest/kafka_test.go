package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsnotify/internal/notify"
)

// fakeReader serves queued messages, then blocks until ctx is done or fails with err.
type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return kafka.Message{}, err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
	done   chan struct{}
	want   int
}

func (f *fakeNotifier) Notify(_ context.Context, ev notify.Event) (notify.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.events) == f.want && f.done != nil {
		close(f.done)
	}
	return notify.DispatchResult{EventID: ev.ID, Kind: ev.Kind}, f.err
}

func TestConsumerSkipsBadMessages(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"kind":"server.restarted","payload":{"server_name":"web-1"}}`)},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"kind":"docker.cleanup"}`)},
	}}
	n := &fakeNotifier{done: make(chan struct{}), want: 2}

	var mu sync.Mutex
	var results []string
	c, err := NewConsumer(Config{Topic: "events"}, n,
		WithReader(reader),
		WithIngested(func(source, result string) {
			mu.Lock()
			results = append(results, source+":"+result)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not dispatch both events")
	}
	cancel()
	require.NoError(t, <-errCh)

	require.Len(t, n.events, 2)
	assert.Equal(t, notify.EventServerRestarted, n.events[0].Kind)
	assert.Equal(t, notify.EventDockerCleanup, n.events[1].Kind)
	mu.Lock()
	assert.Equal(t, []string{"kafka:ok", "kafka:invalid", "kafka:ok"}, results)
	mu.Unlock()

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestConsumerReportsStoreErrors(t *testing.T) {
	n := &fakeNotifier{err: errors.New("store down")}
	var results []string
	c, err := NewConsumer(Config{}, n,
		WithReader(&fakeReader{}),
		WithIngested(func(source, result string) { results = append(results, result) }),
	)
	require.NoError(t, err)

	c.handle(context.Background(), kafka.Message{Value: []byte(`{"kind":"app.deployed"}`)})
	assert.Equal(t, []string{"error"}, results)
	require.Len(t, n.events, 1)
}

func TestConsumerReturnsReadErrors(t *testing.T) {
	c, err := NewConsumer(Config{}, &fakeNotifier{}, WithReader(&fakeReader{err: errors.New("broker gone")}))
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Brokers: []string{"localhost:9092"}}.Validate())
	assert.NoError(t, Config{Brokers: []string{"localhost:9092"}, Topic: "events"}.Validate())

	_, err := NewConsumer(Config{}, &fakeNotifier{})
	assert.Error(t, err)
	_, err = NewConsumer(Config{Brokers: []string{"localhost:9092"}, Topic: "events"}, nil)
	assert.Error(t, err)
}
