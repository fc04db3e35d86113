package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"go.uber.org/zap"
)

const defaultQueueSize = 1024

var (
	ErrQueueFull       = errors.New("events: publish queue full")
	ErrPublisherClosed = errors.New("events: publisher closed")
)

// AsyncPublisher queues ledger events for a single background worker, so a
// mutation never waits on the broker. Events reach the broker in enqueue order.
type AsyncPublisher struct {
	inner   Publisher
	logger  *zap.Logger
	timeout time.Duration
	queue   chan bankroll.LedgerEvent
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncPublisher starts the worker. Each delivery gets its own timeout deadline.
func NewAsyncPublisher(inner Publisher, logger *zap.Logger, queueSize int, timeout time.Duration) *AsyncPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	publisher := &AsyncPublisher{
		inner:   inner,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan bankroll.LedgerEvent, queueSize),
		done:    make(chan struct{}),
	}
	go publisher.run()
	return publisher
}

// PublishLedgerEvent enqueues the event without blocking. A full queue drops it.
func (publisher *AsyncPublisher) PublishLedgerEvent(_ context.Context, event bankroll.LedgerEvent) error {
	publisher.mu.RLock()
	defer publisher.mu.RUnlock()
	if publisher.closed {
		return ErrPublisherClosed
	}
	select {
	case publisher.queue <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s for user %s", ErrQueueFull, event.Type, event.UserID)
	}
}

func (publisher *AsyncPublisher) run() {
	defer close(publisher.done)
	for event := range publisher.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publisher.timeout)
		err := publisher.inner.PublishLedgerEvent(ctx, event)
		cancel()
		if err != nil {
			publisher.logger.Warn("ledger event publish failed",
				zap.String("event_type", event.Type),
				zap.String("user_id", event.UserID),
				zap.String("bet_id", event.BetID),
				zap.Error(err),
			)
		}
	}
}

// Close delivers what is already queued, then closes the underlying publisher.
func (publisher *AsyncPublisher) Close() error {
	publisher.mu.Lock()
	if publisher.closed {
		publisher.mu.Unlock()
		return nil
	}
	publisher.closed = true
	close(publisher.queue)
	publisher.mu.Unlock()

	<-publisher.done
	return publisher.inner.Close()
}
