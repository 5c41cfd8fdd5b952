package notify

import (
	"context"
	"sort"
	"sync"
)

// Payload is a formatter's output for one channel kind.
type Payload interface {
	ChannelKind() ChannelKind
}

// Formatter is a pure transform from bundle to wire payload.
type Formatter interface {
	Format(b ContentBundle, cfg ChannelConfig) (Payload, error)
}

type FormatterFunc func(b ContentBundle, cfg ChannelConfig) (Payload, error)

func (f FormatterFunc) Format(b ContentBundle, cfg ChannelConfig) (Payload, error) { return f(b, cfg) }

// Transport performs the network send. It must honor ctx.
type Transport interface {
	Send(ctx context.Context, destination string, p Payload) error
}

type TransportFunc func(ctx context.Context, destination string, p Payload) error

func (f TransportFunc) Send(ctx context.Context, destination string, p Payload) error {
	return f(ctx, destination, p)
}

// Binding pairs the formatter and transport of one channel kind.
type Binding struct {
	Formatter Formatter
	Transport Transport
}

// Registry maps channel kinds to bindings. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bindings map[ChannelKind]Binding
}

func NewRegistry() *Registry {
	return &Registry{bindings: map[ChannelKind]Binding{}}
}

// Register binds kind, replacing any previous binding. Nil parts unregister.
func (r *Registry) Register(kind ChannelKind, f Formatter, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil || t == nil {
		delete(r.bindings, kind)
		return
	}
	r.bindings[kind] = Binding{Formatter: f, Transport: t}
}

func (r *Registry) Lookup(kind ChannelKind) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[kind]
	return b, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []ChannelKind {
	r.mu.RLock()
	out := make([]ChannelKind, 0, len(r.bindings))
	for k := range r.bindings {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
