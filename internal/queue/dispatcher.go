// Package queue delivers negotiation notifications asynchronously. Engine
// transitions hand events to a Dispatcher, which retries delivery to a
// Sink (the message broker or the database) on its own goroutines.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/flancer/internal/model"
)

// Sink delivers one event. Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, ev model.NotificationEvent) error
}

type DispatcherConfig struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	SendTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     2,
		Buffer:      256,
		MaxAttempts: 5,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		SendTimeout: 5 * time.Second,
	}
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	d := DefaultDispatcherConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	return c
}

// BackoffDuration returns the wait before retry number attempt (1-based):
// base doubled per attempt, capped at max.
func BackoffDuration(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// Dispatcher is a bounded in-memory outbox drained by a worker pool.
type Dispatcher struct {
	sink    Sink
	cfg     DispatcherConfig
	logger  *slog.Logger
	events  chan model.NotificationEvent
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

func NewDispatcher(sink Sink, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		events: make(chan model.NotificationEvent, cfg.Buffer),
		stop:   make(chan struct{}),
	}
}

// Notify queues ev without blocking. When the buffer is full the event is
// dropped and logged.
func (d *Dispatcher) Notify(ev model.NotificationEvent) {
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification dropped, queue full",
			"event_id", ev.ID, "user_id", ev.UserID, "type", ev.Type,
			"negotiation_id", ev.Metadata["negotiation_id"])
	}
}

// Dropped reports how many events Notify discarded.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Start launches the worker goroutines
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop signals workers to flush what is queued and waits for them.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("context canceled, notification worker exiting", "id", id)
			return
		case <-d.stop:
			d.drain(ctx)
			d.logger.Info("notification worker stopping", "id", id)
			return
		case ev := <-d.events:
			d.deliver(ctx, ev)
		}
	}
}

// drain makes one delivery attempt for every event still buffered.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			if err := d.send(ctx, ev); err != nil {
				d.giveUp(ev, 1, err)
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev model.NotificationEvent) {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err = d.send(ctx, ev); err == nil {
			return
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}
		d.logger.Debug("notification delivery failed, retrying",
			"event_id", ev.ID, "attempt", attempt, "err", err)
		t := time.NewTimer(BackoffDuration(attempt, d.cfg.BaseBackoff, d.cfg.MaxBackoff))
		select {
		case <-t.C:
		case <-d.stop:
			t.Stop()
			d.giveUp(ev, attempt, err)
			return
		case <-ctx.Done():
			t.Stop()
			d.giveUp(ev, attempt, err)
			return
		}
	}
	d.giveUp(ev, d.cfg.MaxAttempts, err)
}

func (d *Dispatcher) send(ctx context.Context, ev model.NotificationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.sink.Send(ctx, ev)
}

func (d *Dispatcher) giveUp(ev model.NotificationEvent, attempts int, err error) {
	d.logger.Error("notification delivery failed",
		"event_id", ev.ID, "user_id", ev.UserID, "type", ev.Type,
		"negotiation_id", ev.Metadata["negotiation_id"], "attempts", attempts, "err", err)
}
