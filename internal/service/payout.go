package service

import (
	"affiliate-commission/internal/client"
	"affiliate-commission/internal/metrics"
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/queue"
	"affiliate-commission/internal/repository"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Enqueuer accepts payout tasks for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.PayoutTask) error
}

type PayoutService interface {
	// Payout enqueues one task per unpaid order of the affiliate and returns
	// the number of tasks enqueued. It does not wait for settlement.
	Payout(ctx context.Context, merchant *model.Merchant, affiliateID string) (int, error)
	// SettleOrder executes one payout task. An order that is not unpaid is
	// skipped without error.
	SettleOrder(ctx context.Context, task queue.PayoutTask) error
	ResetPayout(ctx context.Context, merchant *model.Merchant, orderID string) error
	ReapStalePayouts(ctx context.Context) (int64, error)
}

type PayoutOptions struct {
	MaxAttempts     int
	ProcessingLease time.Duration
}

type payoutServiceImpl struct {
	affiliateRepo repository.AffiliateRepository
	orderRepo     repository.OrderRepository
	queue         Enqueuer
	gateway       client.PaypalClient
	opts          PayoutOptions
	logger        *zap.Logger
}

func NewPayoutService(
	affiliateRepo repository.AffiliateRepository,
	orderRepo repository.OrderRepository,
	queue Enqueuer,
	gateway client.PaypalClient,
	opts PayoutOptions,
	logger *zap.Logger,
) PayoutService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &payoutServiceImpl{
		affiliateRepo: affiliateRepo,
		orderRepo:     orderRepo,
		queue:         queue,
		gateway:       gateway,
		opts:          opts,
		logger:        logger,
	}
}

func (s *payoutServiceImpl) Payout(ctx context.Context, merchant *model.Merchant, affiliateID string) (int, error) {
	affiliate, err := s.affiliateRepo.FindByIDAndMerchant(ctx, affiliateID, merchant.ID)
	if err != nil {
		return 0, fmt.Errorf("find affiliate: %w", err)
	}
	if affiliate == nil {
		return 0, &NotFoundError{Resource: "affiliate", Key: affiliateID}
	}

	orders, err := s.orderRepo.ListDispatchable(ctx, affiliate.ID)
	if err != nil {
		return 0, fmt.Errorf("list unpaid orders: %w", err)
	}

	enqueued := 0
	for _, order := range orders {
		if err := s.queue.Enqueue(ctx, queue.PayoutTask{OrderID: order.ID}); err != nil {
			return enqueued, fmt.Errorf("enqueue payout for order %s: %w", order.ID, err)
		}
		enqueued++
		metrics.PayoutTasksEnqueued.Inc()
	}

	s.logger.Info("payout dispatched",
		zap.String("affiliate_id", affiliate.ID),
		zap.Int("tasks", enqueued),
	)
	return enqueued, nil
}

func (s *payoutServiceImpl) SettleOrder(ctx context.Context, task queue.PayoutTask) error {
	start := time.Now()
	defer func() {
		metrics.PayoutDuration.Observe(time.Since(start).Seconds())
	}()

	claimed, err := s.orderRepo.Claim(ctx, task.OrderID)
	if err != nil {
		metrics.PayoutsSettled.WithLabelValues("error").Inc()
		return fmt.Errorf("claim order %s: %w", task.OrderID, err)
	}
	if !claimed {
		metrics.PayoutsSettled.WithLabelValues("skipped").Inc()
		s.logger.Debug("order not unpaid, skipping", zap.String("order_id", task.OrderID))
		return nil
	}

	order, err := s.orderRepo.FindByID(ctx, task.OrderID)
	if err != nil {
		// without the stored attempt count the retry budget cannot be enforced
		return s.fail(ctx, task.OrderID, 0, fmt.Errorf("read order: %w", err), false)
	}
	if order == nil || order.AffiliateID == nil {
		return s.fail(ctx, task.OrderID, 0, fmt.Errorf("order has no affiliate"), false)
	}

	if order.CommissionOwed.IsZero() {
		return s.settle(ctx, order, "")
	}

	payee, err := s.affiliateRepo.FindPayee(ctx, *order.AffiliateID)
	if err != nil {
		return s.fail(ctx, order.ID, order.PayoutAttempts, fmt.Errorf("read payee: %w", err), true)
	}
	if payee == nil {
		return s.fail(ctx, order.ID, order.PayoutAttempts, fmt.Errorf("payee %s not found", *order.AffiliateID), false)
	}

	resp, err := s.gateway.SendPayout(ctx, &client.PayoutRequest{
		// stable per attempt: a replayed attempt is deduplicated by PayPal
		SenderBatchID: fmt.Sprintf("%s-%d", order.ID, order.PayoutAttempts),
		ItemID:        order.ID,
		ReceiverEmail: payee.Email,
		Amount:        order.CommissionOwed,
		Note:          "Affiliate commission for order " + order.ID,
	})
	if err != nil {
		return s.fail(ctx, order.ID, order.PayoutAttempts, err, client.IsRetryable(err))
	}

	return s.settle(ctx, order, resp.BatchID)
}

func (s *payoutServiceImpl) settle(ctx context.Context, order *model.Order, reference string) error {
	paid, err := s.orderRepo.MarkPaid(ctx, order.ID, reference)
	if err != nil {
		metrics.PayoutsSettled.WithLabelValues("error").Inc()
		return fmt.Errorf("mark order %s paid (reference %q): %w", order.ID, reference, err)
	}
	if !paid {
		// the reaper released the claim while the gateway call was running
		metrics.PayoutsSettled.WithLabelValues("error").Inc()
		s.logger.Error("settled order was no longer processing",
			zap.String("order_id", order.ID),
			zap.String("reference", reference),
		)
		return nil
	}

	metrics.PayoutsSettled.WithLabelValues("paid").Inc()
	s.logger.Info("order paid",
		zap.String("order_id", order.ID),
		zap.String("amount", order.CommissionOwed.StringFixed(2)),
		zap.String("reference", reference),
	)
	return nil
}

// fail releases the claim and classifies the failure. attempts is the count
// before this attempt.
func (s *payoutServiceImpl) fail(ctx context.Context, orderID string, attempts int, cause error, retryable bool) error {
	attempt := attempts + 1
	flag := !retryable || attempt >= s.opts.MaxAttempts

	if _, err := s.orderRepo.ReleaseClaim(ctx, orderID, cause.Error(), flag); err != nil {
		metrics.PayoutsSettled.WithLabelValues("error").Inc()
		return fmt.Errorf("release order %s after %v: %w", orderID, cause, err)
	}

	if flag {
		metrics.PayoutsSettled.WithLabelValues("flagged").Inc()
		s.logger.Error("payout flagged for review",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
			zap.Error(cause),
		)
		return &FatalPayoutError{OrderID: orderID, Attempt: attempt, Err: cause}
	}

	metrics.PayoutsSettled.WithLabelValues("retry").Inc()
	s.logger.Warn("payout failed, will retry",
		zap.String("order_id", orderID),
		zap.Int("attempt", attempt),
		zap.Error(cause),
	)
	return &TransientPayoutError{OrderID: orderID, Attempt: attempt, Err: cause}
}

func (s *payoutServiceImpl) ResetPayout(ctx context.Context, merchant *model.Merchant, orderID string) error {
	cleared, err := s.orderRepo.ClearFlag(ctx, orderID, merchant.ID)
	if err != nil {
		return fmt.Errorf("clear payout flag: %w", err)
	}
	if !cleared {
		return &NotFoundError{Resource: "flagged order", Key: orderID}
	}

	s.logger.Info("payout flag cleared", zap.String("order_id", orderID))
	return nil
}

func (s *payoutServiceImpl) ReapStalePayouts(ctx context.Context) (int64, error) {
	released, err := s.orderRepo.ReleaseStale(ctx, time.Now().Add(-s.opts.ProcessingLease))
	if err != nil {
		return 0, fmt.Errorf("release stale payouts: %w", err)
	}
	if released > 0 {
		s.logger.Warn("released stale payout claims", zap.Int64("orders", released))
	}
	return released, nil
}
