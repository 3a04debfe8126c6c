package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type DispatcherConfig struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Metrics    MetricsCollector
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
		Metrics:    NoOpMetricsCollector{},
	}
}

// Dispatcher publishes events from a background goroutine so that callers
// never wait on the broker. Events that do not fit in the buffer are dropped.
type Dispatcher struct {
	publisher Publisher
	config    DispatcherConfig
	queue     chan Event

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(publisher Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultDispatcherConfig().BufferSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoOpMetricsCollector{}
	}
	return &Dispatcher{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
	}
}

// Emit queues an event. It never blocks.
func (d *Dispatcher) Emit(event Event) {
	select {
	case d.queue <- event:
		d.config.Metrics.RecordQueueDepth(len(d.queue))
	default:
		d.config.Metrics.RecordEventDropped(event.Type)
		log.Warn().
			Str("event_id", event.ID.String()).
			Str("event_type", event.Type).
			Msg("event queue full, dropping event")
	}
}

// Publish lets a Dispatcher stand in wherever a Publisher is expected.
func (d *Dispatcher) Publish(_ context.Context, event Event) error {
	d.Emit(event)
	return nil
}

// Run publishes queued events until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeOnce.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	start := time.Now()
	err := d.publishWithRetry(ctx, ev)
	d.config.Metrics.RecordEventProcessed(ev.Type, err == nil, time.Since(start))
	d.config.Metrics.RecordQueueDepth(len(d.queue))
	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Str("event_type", ev.Type).
			Msg("failed to publish event")
	}
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.config.RetryDelay * time.Duration(attempt)):
			}
		}

		err := d.publisher.Publish(ctx, event)
		d.config.Metrics.RecordPublishAttempt(event.Type, attempt+1, err == nil)
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}

		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", d.config.MaxRetries+1, lastErr)
}
