package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tabkeeper-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	metadataLane       = "lane"
	metadataEnqueuedAt = "enqueued_at"

	logModule = "Queue"
)

var (
	ErrDispatcherRunning = errors.New("dispatcher already running")
	ErrDispatcherClosed  = errors.New("dispatcher closed")
)

type Config struct {
	// MaxAttempts bounds handler invocations per delivery, first try included.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// HandlerTimeout caps a single invocation. In-flight handlers are not
	// cancelled by shutdown, only by this timeout.
	HandlerTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     time.Minute,
		HandlerTimeout: 2 * time.Minute,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	return c
}

type LaneStats struct {
	Lane         Lane
	Enqueued     int64
	Succeeded    int64
	Retried      int64
	DeadLettered int64
	Duplicates   int64
}

type laneCounters struct {
	enqueued     atomic.Int64
	succeeded    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	duplicates   atomic.Int64
}

type worker struct {
	handler     Handler
	concurrency int
}

// Dispatcher routes jobs from lane topics to registered handlers. Jobs are
// retried with exponential backoff, then handed to the dead-letter sink
// and acknowledged, so a failing handler never blocks its lane.
type Dispatcher struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	sink       DeadLetterSink
	deduper    Deduper
	logger     logger.ILogger
	tracer     trace.Tracer
	cfg        Config

	mu       sync.Mutex
	workers  map[Lane]*worker
	counters map[Lane]*laneCounters
	running  bool
	closed   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDispatcher wires the dispatcher. deduper may be nil.
func NewDispatcher(
	publisher message.Publisher,
	subscriber message.Subscriber,
	sink DeadLetterSink,
	deduper Deduper,
	log logger.ILogger,
	cfg Config,
) *Dispatcher {
	counters := make(map[Lane]*laneCounters, len(Lanes))
	for _, lane := range Lanes {
		counters[lane] = &laneCounters{}
	}

	return &Dispatcher{
		publisher:  publisher,
		subscriber: subscriber,
		sink:       sink,
		deduper:    deduper,
		logger:     log,
		tracer:     otel.Tracer("tabkeeper/queue"),
		cfg:        cfg.normalize(),
		workers:    make(map[Lane]*worker),
		counters:   counters,
	}
}

// Enqueue publishes payload on the lane and returns once the broker has
// accepted it. It never waits for the job to run.
func (d *Dispatcher) Enqueue(ctx context.Context, lane Lane, payload interface{}) (Handle, error) {
	if !lane.Valid() {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownLane, lane)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Handle{}, fmt.Errorf("encode %s payload: %w", lane, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataLane, string(lane))
	msg.Metadata.Set(metadataEnqueuedAt, time.Now().UTC().Format(time.RFC3339Nano))
	msg.SetContext(ctx)

	if err := d.publisher.Publish(lane.Topic(), msg); err != nil {
		return Handle{}, fmt.Errorf("publish %s job: %w", lane, err)
	}

	d.counters[lane].enqueued.Add(1)
	d.logger.Debug(logModule, "Job enqueued", map[string]interface{}{
		"job_id": msg.UUID,
		"lane":   string(lane),
	})

	return Handle{ID: msg.UUID, Lane: lane}, nil
}

// RegisterWorker binds handler to lane with the given number of parallel
// consumers. Workers must be registered before Run.
func (d *Dispatcher) RegisterWorker(lane Lane, handler Handler, concurrency int) error {
	if !lane.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLane, lane)
	}
	if handler == nil {
		return fmt.Errorf("nil handler for lane %s", lane)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrDispatcherRunning
	}
	if _, exists := d.workers[lane]; exists {
		return fmt.Errorf("worker already registered for lane %s", lane)
	}

	d.workers[lane] = &worker{handler: handler, concurrency: concurrency}
	return nil
}

// Run subscribes every registered lane and starts its workers. It returns
// once all subscriptions are in place; Close stops the workers.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.running {
		return ErrDispatcherRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	for lane, w := range d.workers {
		messages, err := d.subscriber.Subscribe(runCtx, lane.Topic())
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", lane, err)
		}

		for i := 0; i < w.concurrency; i++ {
			d.wg.Add(1)
			go func(lane Lane, handler Handler) {
				defer d.wg.Done()
				for msg := range messages {
					d.process(runCtx, lane, handler, msg)
				}
			}(lane, w.handler)
		}

		d.logger.Info(logModule, "Lane worker started", map[string]interface{}{
			"lane":        string(lane),
			"concurrency": w.concurrency,
		})
	}

	d.cancel = cancel
	d.running = true
	return nil
}

// Close stops taking new deliveries and waits for in-flight jobs. Jobs
// waiting out a retry backoff are released back to the broker.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	d.logger.Info(logModule, "Dispatcher stopped", nil)
	return nil
}

func (d *Dispatcher) Stats() []LaneStats {
	stats := make([]LaneStats, 0, len(Lanes))
	for _, lane := range Lanes {
		c := d.counters[lane]
		stats = append(stats, LaneStats{
			Lane:         lane,
			Enqueued:     c.enqueued.Load(),
			Succeeded:    c.succeeded.Load(),
			Retried:      c.retried.Load(),
			DeadLettered: c.deadLettered.Load(),
			Duplicates:   c.duplicates.Load(),
		})
	}
	return stats
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

func (d *Dispatcher) process(ctx context.Context, lane Lane, handler Handler, msg *message.Message) {
	job := &Job{
		ID:      msg.UUID,
		Lane:    lane,
		Payload: msg.Payload,
	}
	if raw := msg.Metadata.Get(metadataEnqueuedAt); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			job.EnqueuedAt = t
		}
	}

	counters := d.counters[lane]

	if d.deduper != nil {
		seen, err := d.deduper.Seen(ctx, job.ID)
		if err != nil {
			d.logger.Warn(logModule, "Dedupe lookup failed, processing anyway", map[string]interface{}{
				"job_id": job.ID,
				"lane":   string(lane),
				"error":  err.Error(),
			})
		} else if seen {
			counters.duplicates.Add(1)
			d.logger.Info(logModule, "Duplicate delivery skipped", map[string]interface{}{
				"job_id": job.ID,
				"lane":   string(lane),
			})
			msg.Ack()
			return
		}
	}

	b := d.newBackOff()
	var lastErr error
	attempt := 0

	for attempt = 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		job.Attempt = attempt
		lastErr = d.invoke(ctx, handler, job)
		if lastErr == nil {
			counters.succeeded.Add(1)
			d.markDone(ctx, job)
			msg.Ack()
			return
		}
		if IsPermanent(lastErr) || attempt == d.cfg.MaxAttempts {
			break
		}

		wait := b.NextBackOff()
		counters.retried.Add(1)
		d.logger.Warn(logModule, "Job failed, retrying", map[string]interface{}{
			"job_id":  job.ID,
			"lane":    string(lane),
			"attempt": attempt,
			"backoff": wait.String(),
			"error":   lastErr.Error(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info(logModule, "Shutdown during backoff, releasing job for redelivery", map[string]interface{}{
				"job_id":  job.ID,
				"lane":    string(lane),
				"attempt": attempt,
			})
			msg.Nack()
			return
		case <-timer.C:
		}
	}

	d.deadLetter(ctx, &DeadLetter{
		Job:       job,
		Err:       lastErr,
		Attempts:  attempt,
		Permanent: IsPermanent(lastErr),
	})
	counters.deadLettered.Add(1)
	d.markDone(ctx, job)
	msg.Ack()
}

func (d *Dispatcher) invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.HandlerTimeout)
	defer cancel()

	hctx, span := d.tracer.Start(hctx, "job."+string(job.Lane), trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.lane", string(job.Lane)),
		attribute.Int("job.attempt", job.Attempt),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return handler(hctx, job)
}

func (d *Dispatcher) deadLetter(ctx context.Context, dl *DeadLetter) {
	details := map[string]interface{}{
		"job_id":    dl.Job.ID,
		"lane":      string(dl.Job.Lane),
		"attempts":  dl.Attempts,
		"permanent": dl.Permanent,
		"error":     dl.Err.Error(),
	}
	d.logger.Error(logModule, "Job dead-lettered", details)

	if d.sink == nil {
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := d.sink.Save(sctx, dl); err != nil {
		details["payload"] = string(dl.Job.Payload)
		details["sink_error"] = err.Error()
		d.logger.Error(logModule, "Failed to persist dead letter", details)
	}
}

func (d *Dispatcher) markDone(ctx context.Context, job *Job) {
	if d.deduper == nil {
		return
	}
	if err := d.deduper.Mark(context.WithoutCancel(ctx), job.ID); err != nil {
		d.logger.Warn(logModule, "Failed to record job completion", map[string]interface{}{
			"job_id": job.ID,
			"lane":   string(job.Lane),
			"error":  err.Error(),
		})
	}
}
