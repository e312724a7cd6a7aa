package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"feedsentry/internal/core"
)

// ErrNoListener is returned by a handler whose transport had nobody to
// deliver to. The bus treats it as success.
var ErrNoListener = errors.New("broadcast: no listener")

// Handler receives published events
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Publisher is the side of the bus services depend on
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus dispatches each event synchronously to every registered handler in
// registration order. A failing handler does not stop the others.
//
// Followers run after the handlers, and only when all of them succeeded.
// Their errors are logged, never returned, so a follower cannot cause the
// publisher to roll back a change the follower already acted on.
type Bus struct {
	mu        sync.RWMutex
	handlers  []namedHandler
	followers []namedHandler
	logger    *core.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewBus creates an empty bus
func NewBus(logger *core.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler under a name used in logs
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, handler: h})
}

// Follow registers a handler that only sees events every regular handler
// accepted
func (b *Bus) Follow(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.followers = append(b.followers, namedHandler{name: name, handler: h})
}

// Publish delivers event to all handlers. It returns the joined errors of
// the handlers that failed, ignoring ErrNoListener; a bus with no handlers
// returns nil. Followers are skipped when an error is returned.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event = NewEvent(event.Type, event.Payload)
	}

	b.mu.RLock()
	handlers := make([]namedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	followers := make([]namedHandler, len(b.followers))
	copy(followers, b.followers)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.dispatch(ctx, h, event); err != nil {
			if errors.Is(err, ErrNoListener) {
				b.logger.Debug("No listener for event", "handler", h.name, "type", event.Type)
				continue
			}
			b.logger.Warn("Event handler failed", "handler", h.name, "type", event.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, h := range followers {
		if err := b.dispatch(ctx, h, event); err != nil && !errors.Is(err, ErrNoListener) {
			b.logger.Warn("Event follower failed", "handler", h.name, "type", event.Type, "error", err)
		}
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, h namedHandler, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h.handler.Handle(ctx, event)
}
