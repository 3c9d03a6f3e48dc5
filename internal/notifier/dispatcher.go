package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/metrics"
	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/sender"
)

// Journal records push results. history.Journal implements it.
type Journal interface {
	Record(ctx context.Context, n *model.Notification, results []model.PushResult) error
}

type DispatcherOptions struct {
	QueueSize     int
	Workers       int
	RatePerMinute float64
	Burst         int
	Journal       Journal
	Metrics       *metrics.Metrics
}

// Dispatcher delivers notifications on a bounded queue drained by a fixed
// worker pool. Enqueueing never blocks; a full queue drops the notification.
type Dispatcher struct {
	log     *slog.Logger
	pusher  sender.Pusher
	journal Journal
	limiter *rate.Limiter
	metrics *metrics.Metrics
	workers int

	mu     sync.RWMutex
	queue  chan *model.Notification
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, pusher sender.Pusher, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Limit(opts.RatePerMinute / 60)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		log:     log.With(slog.String("component", "dispatcher")),
		pusher:  pusher,
		journal: opts.Journal,
		limiter: rate.NewLimiter(limit, opts.Burst),
		metrics: opts.Metrics,
		workers: opts.Workers,
		queue:   make(chan *model.Notification, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info("dispatcher started", slog.Int("workers", d.workers), slog.Int("queue_size", cap(d.queue)))
}

// Dispatch enqueues n and returns immediately. It reports false when the
// queue is full or the dispatcher is stopped.
func (d *Dispatcher) Dispatch(n *model.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- n:
		d.metrics.QueueLength(len(d.queue))
		return true
	default:
		d.metrics.QueueDropped()
		return false
	}
}

// PushNow delivers n synchronously, bypassing the queue and the rate limit.
func (d *Dispatcher) PushNow(ctx context.Context, n *model.Notification) []model.PushResult {
	return d.deliver(ctx, n)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for n := range d.queue {
		d.metrics.QueueLength(len(d.queue))

		if err := d.limiter.Wait(d.ctx); err != nil {
			d.log.Warn("notification abandoned", slog.String("id", n.ID), sl.Err(err))
			continue
		}

		d.deliver(d.ctx, n)
	}

	d.log.Debug("dispatch worker stopped", slog.Int("worker", id))
}

func (d *Dispatcher) deliver(ctx context.Context, n *model.Notification) []model.PushResult {
	start := time.Now()
	results := sender.PushAll(ctx, d.pusher, n.Credentials, n.Targets, n.Text)
	d.metrics.PushDuration(time.Since(start).Seconds())

	for _, r := range results {
		d.metrics.PushResult(r.OK)
	}

	ok := lo.CountBy(results, func(r model.PushResult) bool { return r.OK })
	d.log.Info("notification pushed",
		slog.String("id", n.ID),
		slog.Int("ok", ok),
		slog.Int("failed", len(results)-ok),
		slog.Duration("took", time.Since(start)),
	)

	if d.journal != nil {
		// Journal writes outlive a cancelled push so failures are still recorded.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := d.journal.Record(jctx, n, results); err != nil {
			d.log.Error("failed to record push results", slog.String("id", n.ID), sl.Err(err))
		}
	}

	return results
}

// Stop refuses new notifications and waits for queued ones to be pushed.
// If ctx expires first, in-flight pushes are cancelled and ctx.Err is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.log.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.log.Warn("dispatcher stopped before queue drained", sl.Err(ctx.Err()))
		return ctx.Err()
	}
}
