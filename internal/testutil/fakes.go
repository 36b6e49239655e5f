package testutil

import (
	"affiliate-commission/internal/client"
	"affiliate-commission/internal/notification"
	"affiliate-commission/internal/queue"
	"context"
	"fmt"
	"sync"
	"time"
)

type FakeDiscounts struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (f *FakeDiscounts) CreateDiscountCode(_ context.Context, merchantDomain string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	return fmt.Sprintf("AFF-%d", f.Calls), nil
}

func (f *FakeDiscounts) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

type FakePublisher struct {
	mu     sync.Mutex
	Err    error
	Events []notification.AffiliateCreated
}

func (f *FakePublisher) PublishAffiliateCreated(_ context.Context, event notification.AffiliateCreated) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	f.Events = append(f.Events, event)
	return nil
}

func (f *FakePublisher) Published() []notification.AffiliateCreated {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.AffiliateCreated(nil), f.Events...)
}

// FakeGateway records payouts. Errs are returned in order, one per call,
// before falling back to success.
type FakeGateway struct {
	mu       sync.Mutex
	Errs     []error
	Requests []client.PayoutRequest
}

func (f *FakeGateway) SendPayout(_ context.Context, req *client.PayoutRequest) (*client.PayoutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, *req)
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &client.PayoutResponse{
		BatchID:     "BATCH-" + req.SenderBatchID,
		BatchStatus: "PENDING",
	}, nil
}

func (f *FakeGateway) Sent() []client.PayoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.PayoutRequest(nil), f.Requests...)
}

type FakeQueue struct {
	mu    sync.Mutex
	Err   error
	Tasks []queue.PayoutTask
}

func (f *FakeQueue) Enqueue(_ context.Context, task queue.PayoutTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	f.Tasks = append(f.Tasks, task)
	return nil
}

// Drain returns the queued tasks and empties the queue.
func (f *FakeQueue) Drain() []queue.PayoutTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := f.Tasks
	f.Tasks = nil
	return tasks
}
