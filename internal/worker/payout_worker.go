package worker

import (
	"affiliate-commission/internal/queue"
	"affiliate-commission/internal/service"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.PayoutTask) error
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Recover(ctx context.Context) (int, error)
}

type Settler interface {
	SettleOrder(ctx context.Context, task queue.PayoutTask) error
}

type PayoutWorkerOptions struct {
	Concurrency   int
	RatePerSecond float64
	// PollWait bounds a single blocking dequeue so shutdown is noticed.
	PollWait time.Duration
	// RetryDelay is multiplied by the attempt number before a failed task
	// goes back to the queue.
	RetryDelay time.Duration
}

// PayoutWorker pulls payout tasks off the queue and settles them with a
// bounded number of goroutines. Gateway calls share one rate limiter.
type PayoutWorker struct {
	queue   TaskQueue
	settler Settler
	limiter *rate.Limiter
	opts    PayoutWorkerOptions
	logger  *zap.Logger
}

func NewPayoutWorker(q TaskQueue, settler Settler, opts PayoutWorkerOptions, logger *zap.Logger) *PayoutWorker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollWait <= 0 {
		opts.PollWait = 2 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &PayoutWorker{
		queue:   q,
		settler: settler,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled or a worker hits a queue error.
func (w *PayoutWorker) Run(ctx context.Context) error {
	recovered, err := w.queue.Recover(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		w.logger.Warn("requeued unacknowledged payout tasks", zap.Int("tasks", recovered))
	}

	w.logger.Info("payout workers started", zap.Int("concurrency", w.opts.Concurrency))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return w.loop(ctx, id)
		})
	}

	err = g.Wait()
	w.logger.Info("payout workers stopped")
	return err
}

func (w *PayoutWorker) loop(ctx context.Context, id int) error {
	log := w.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return nil
		}

		delivery, err := w.queue.Dequeue(ctx, w.opts.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("dequeue payout task", zap.Error(err))
			continue
		}
		if delivery == nil {
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			// shutting down; the task stays in the processing list for Recover
			return nil
		}

		w.Handle(ctx, delivery)
	}
}

// Handle settles one delivery and acknowledges it. A transient failure puts
// a fresh task for the same order back on the queue first.
func (w *PayoutWorker) Handle(ctx context.Context, d *queue.Delivery) {
	log := w.logger.With(
		zap.String("task_id", d.Task.TaskID),
		zap.String("order_id", d.Task.OrderID),
	)

	err := w.settler.SettleOrder(ctx, d.Task)

	var (
		transient *service.TransientPayoutError
		fatal     *service.FatalPayoutError
	)
	switch {
	case err == nil:
	case errors.As(err, &transient):
		if !w.backoff(ctx, transient.Attempt) {
			return
		}
		if err := w.queue.Enqueue(ctx, queue.PayoutTask{OrderID: d.Task.OrderID}); err != nil {
			// leave it unacked so Recover replays it
			log.Error("requeue payout task", zap.Error(err))
			return
		}
	case errors.As(err, &fatal):
		log.Error("payout needs operator review", zap.Int("attempt", fatal.Attempt), zap.Error(err))
	default:
		log.Error("payout task failed", zap.Error(err))
	}

	if err := w.queue.Ack(ctx, d); err != nil {
		log.Error("ack payout task", zap.Error(err))
	}
}

func (w *PayoutWorker) backoff(ctx context.Context, attempt int) bool {
	if w.opts.RetryDelay <= 0 {
		return true
	}
	t := time.NewTimer(time.Duration(attempt) * w.opts.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
