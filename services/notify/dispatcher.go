package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market_pulse_backend/metrics"
	"market_pulse_backend/models"
)

// Channel names
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// ErrStopped is returned when dispatching after Stop
var ErrStopped = errors.New("notification dispatcher stopped")

// Event is one triggered alert awaiting delivery
type Event struct {
	Alert models.Alert
	Price decimal.Decimal
	At    time.Time
}

// Channel delivers an event through one medium
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Options configures a Dispatcher
type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds each channel delivery
	Timeout time.Duration
}

// Dispatcher fans triggered alerts out to their enabled channels through a
// bounded queue drained by a fixed worker pool. Deliveries are never retried.
type Dispatcher struct {
	channels map[string]Channel
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	queue chan Event
	quit  chan struct{}
	drain chan struct{}
	wg    sync.WaitGroup

	// held for reading by Dispatch while it may still enqueue
	senders sync.RWMutex

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

func NewDispatcher(opts Options, logger *zap.Logger, channels ...Channel) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{
		channels: byName,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan Event, opts.QueueSize),
		quit:     make(chan struct{}),
		drain:    make(chan struct{}),
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(workerCtx)
	}
	d.logger.Info("notification dispatcher started",
		zap.Int("workers", d.opts.Workers), zap.Int("queue_size", d.opts.QueueSize))
}

// Stop refuses new events, delivers what is already queued and waits for
// the workers, giving up when ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.quit)
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// workers keep consuming until no Dispatch can enqueue any more
		d.senders.Lock()
		d.senders.Unlock()
		close(d.drain)
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("notification dispatcher stop timed out", zap.Int("pending", len(d.queue)))
	}
	if cancel != nil {
		cancel()
	}
	return ctx.Err()
}

// Dispatch queues a triggered alert. It blocks while the queue is full
// until ctx is done or the dispatcher stops.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert, price decimal.Decimal) error {
	event := Event{Alert: alert, Price: price, At: d.now()}
	if alert.TriggeredAt != nil {
		event.At = *alert.TriggeredAt
	}

	select {
	case <-d.quit:
		return ErrStopped
	default:
	}

	d.senders.RLock()
	defer d.senders.RUnlock()
	select {
	case <-d.quit:
		return ErrStopped
	default:
	}

	select {
	case d.queue <- event:
		return nil
	case <-d.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued, undelivered events
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-d.drain:
			for {
				select {
				case event := <-d.queue:
					d.deliver(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// deliver attempts every enabled channel independently
func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	prefs := event.Alert.NotificationChannels
	if prefs.InApp {
		d.attempt(ctx, ChannelInApp, event)
	}
	if prefs.Email {
		d.attempt(ctx, ChannelEmail, event)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, name string, event Event) {
	log := d.logger.With(
		zap.String("channel", name),
		zap.String("alert_id", event.Alert.ID),
		zap.String("owner_id", event.Alert.OwnerID))

	ch, ok := d.channels[name]
	if !ok {
		metrics.Notifications.WithLabelValues(name, metrics.ResultSkipped).Inc()
		log.Warn("notification channel not configured")
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New("channel panicked")
				log.Error("notification channel panic", zap.Any("panic", r))
			}
		}()
		return ch.Deliver(deliverCtx, event)
	}()
	if err != nil {
		metrics.Notifications.WithLabelValues(name, metrics.ResultFailure).Inc()
		log.Warn("notification delivery failed", zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues(name, metrics.ResultSuccess).Inc()
	log.Debug("notification delivered")
}
