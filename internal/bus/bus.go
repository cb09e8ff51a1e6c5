package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatmark/internal/domain"
)

const publishTimeout = 10 * time.Second

var (
	ErrClosed  = errors.New("bus closed")
	ErrBusFull = errors.New("bus full")
	ErrNoTab   = errors.New("no handler registered for tab")
)

// InMemoryBus is a Go-channel based request bus between trackers, the panel and
// the coordinator.
type InMemoryBus struct {
	inbound chan domain.Envelope
	tabs    map[int]domain.TabHandler
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

var _ domain.MessageBus = (*InMemoryBus)(nil)

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.Envelope, bufferSize),
		tabs:    make(map[int]domain.TabHandler),
		logger:  logger,
	}
}

// Publish enqueues env for the coordinator. It blocks up to 10 seconds when the
// bus is full instead of dropping.
func (b *InMemoryBus) Publish(ctx context.Context, env domain.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "action", env.Request.Action)
		return ErrClosed
	}

	select {
	case b.inbound <- env:
		return nil
	default:
	}

	b.logger.Warn("inbound bus full, waiting...", "action", env.Request.Action)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- env:
		b.logger.Info("request delivered after wait", "action", env.Request.Action)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		b.logger.Error("request dropped: bus full for 10s", "action", env.Request.Action)
		return ErrBusFull
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Envelope {
	return b.inbound
}

// OnTab registers the handler that answers requests forwarded to tabID,
// replacing any previous one.
func (b *InMemoryBus) OnTab(tabID int, handler domain.TabHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[tabID] = handler
}

func (b *InMemoryBus) RemoveTab(tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tabs, tabID)
}

// SendToTab forwards req to the tab's handler and returns its response unchanged.
func (b *InMemoryBus) SendToTab(ctx context.Context, tabID int, req domain.Request) (domain.Response, error) {
	b.mu.RLock()
	handler, ok := b.tabs[tabID]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for tab", "tab_id", tabID, "action", req.Action)
		return domain.Response{}, fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	return handler(ctx, req), nil
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
