package sns

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

var _ outbound.EventSink = (*AsyncEventSink)(nil)

// ErrQueueFull is returned by AsyncEventSink.Publish when the buffer is full.
var ErrQueueFull = errors.New("event queue is full")

// AsyncConfig configures an AsyncEventSink.
type AsyncConfig struct {
	// BufferSize is the number of events held while the publisher catches up.
	BufferSize int

	// PublishTimeout bounds one delivery, retries included.
	PublishTimeout time.Duration

	// DrainTimeout bounds how long Close waits for buffered events.
	DrainTimeout time.Duration

	Logger *slog.Logger
}

// AsyncConfigDefaults returns an AsyncConfig with default values.
func AsyncConfigDefaults() AsyncConfig {
	return AsyncConfig{
		BufferSize:     1024,
		PublishTimeout: 10 * time.Second,
		DrainTimeout:   15 * time.Second,
		Logger:         slog.Default(),
	}
}

// AsyncEventSink queues events and publishes them from a background goroutine,
// so a slow or failing downstream never delays the caller. Events that do not
// fit in the buffer are dropped and counted.
type AsyncEventSink struct {
	next   outbound.EventSink
	config AsyncConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outbound.Event

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncEventSink starts the background publisher for next.
func NewAsyncEventSink(next outbound.EventSink, config AsyncConfig) (*AsyncEventSink, error) {
	if next == nil {
		return nil, errors.New("event sink is required")
	}
	defaults := AsyncConfigDefaults()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &AsyncEventSink{
		next:   next,
		config: config,
		logger: config.Logger.With("component", "async-eventsink"),
		queue:  make(chan outbound.Event, config.BufferSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Publish enqueues the event without waiting for delivery. The caller's
// context only guards the enqueue; delivery outlives the request.
func (s *AsyncEventSink) Publish(ctx context.Context, event outbound.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- event:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

func (s *AsyncEventSink) run() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(s.ctx, s.config.PublishTimeout)
		if err := s.next.Publish(ctx, event); err != nil {
			s.failed.Add(1)
			s.logger.Warn("failed to publish event",
				"eventType", event.EventType(),
				"transactionID", event.GetTransactionID(),
				"error", err)
		}
		cancel()
	}
}

// Close stops accepting events, waits up to DrainTimeout for the queue to
// empty, and closes the underlying sink. Deliveries still running at the
// deadline are canceled.
func (s *AsyncEventSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	timer := time.NewTimer(s.config.DrainTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.logger.Warn("drain timed out, canceling in-flight events", "pending", len(s.queue))
		s.cancel()
		<-s.done
	}
	s.cancel()

	s.logger.Info("async event sink closed",
		"dropped", s.dropped.Load(),
		"failed", s.failed.Load())
	return s.next.Close()
}
