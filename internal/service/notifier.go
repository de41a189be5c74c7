package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

// MagicLinkMessage is handed to the mailer. Rendering and delivery happen
// outside this service.
type MagicLinkMessage struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

const magicLinkSubject = "Your magic link to access the application"

// Notifier delivers a message to one sink
type Notifier interface {
	Notify(ctx context.Context, msg MagicLinkMessage) error
}

// LogNotifier writes messages to the log. It is the development sink.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg MagicLinkMessage) error {
	n.logger.Info("magic link issued",
		zap.String("user_id", msg.UserID),
		zap.String("email", msg.Email),
		zap.String("subject", msg.Subject),
		zap.String("url", msg.URL),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}

// ErrDispatcherStopped is returned by Stop when called twice
var ErrDispatcherStopped = errors.New("dispatcher already stopped")

// Dispatcher delivers notifications on background workers. Dispatch never
// blocks: when the queue is full the message is dropped and logged.
type Dispatcher struct {
	notifier Notifier
	queue    chan MagicLinkMessage
	workers  int
	timeout  time.Duration
	metrics  *observability.AuthMetrics
	logger   *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before dispatching.
func NewDispatcher(notifier Notifier, workers, queueSize int, timeout time.Duration, metrics *observability.AuthMetrics, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan MagicLinkMessage, queueSize),
		workers:  workers,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg MagicLinkMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, msg); err != nil {
		d.metrics.Notification(ctx, "failed")
		d.logger.Error("failed to deliver magic link notification",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return
	}
	d.metrics.Notification(ctx, "delivered")
}

// Dispatch enqueues msg and returns immediately
func (d *Dispatcher) Dispatch(ctx context.Context, msg MagicLinkMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.logger.Warn("notification dropped, dispatcher stopped", zap.String("user_id", msg.UserID))
		return
	}

	select {
	case d.queue <- msg:
	default:
		d.metrics.Notification(ctx, "dropped")
		d.logger.Warn("notification dropped, queue full", zap.String("user_id", msg.UserID))
	}
}

// Stop closes the queue and waits for queued messages to be delivered or
// for ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain notifications: %w", ctx.Err())
	}
}
