package publisher

import (
	"context"
	"log/slog"
	"sync"

	audit "lumenpay/pkg/platform/audit"
)

// Publisher fans audit events out to a store, synchronously by default or
// through a buffered channel when configured with WithAsyncBuffer. Audit
// failures are logged and never propagate into the emitting operation: a
// payment must not fail because the trail was briefly unwritable.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox chan audit.Event
	done  chan struct{}
	once  sync.Once

	// mu orders async sends against Close: an Emit holding the lock finishes
	// its send before Close may close the inbox.
	mu     sync.Mutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with the given channel capacity.
// Close drains the buffer before returning.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records one event. In async mode a full buffer drops the event with a
// log line rather than blocking the caller.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
		}
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("audit publisher closed, dropping event", "action", event.Action)
		return nil
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
		}
	}
}

// Close stops the background drain after flushing buffered events. Safe to
// call more than once; events emitted afterwards are dropped, not panics.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			p.mu.Lock()
			p.closed = true
			p.mu.Unlock()
			close(p.inbox)
			<-p.done
		}
	})
}
