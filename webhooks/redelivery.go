package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-payments/core"
)

const DefaultRedeliveryBatchSize = 50

// DefaultStaleClaimAge is how long a claimed delivery may sit pending before
// it is treated as abandoned and handed back to the retry queue.
const DefaultStaleClaimAge = 5 * time.Minute

// RedeliveryWorker drains retry_ready deliveries whose backoff has elapsed.
// ClaimDue marks rows pending atomically, so concurrent workers never
// redeliver the same attempt.
type RedeliveryWorker struct {
	dispatcher *Dispatcher
	deliveries core.DeliveryLedger
	batchSize  int
	now        func() time.Time
}

func NewRedeliveryWorker(dispatcher *Dispatcher, deliveries core.DeliveryLedger, batchSize int) (*RedeliveryWorker, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("webhooks: dispatcher is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("webhooks: delivery ledger is required")
	}
	if batchSize <= 0 {
		batchSize = DefaultRedeliveryBatchSize
	}
	return &RedeliveryWorker{
		dispatcher: dispatcher,
		deliveries: deliveries,
		batchSize:  batchSize,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// DispatchDue claims and redelivers one batch of due deliveries.
func (w *RedeliveryWorker) DispatchDue(ctx context.Context, batchSize int) (core.DispatchStats, error) {
	if w == nil || w.dispatcher == nil {
		return core.DispatchStats{}, fmt.Errorf("webhooks: redelivery worker is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = w.batchSize
	}

	due, err := w.deliveries.ClaimDue(ctx, w.now(), limit)
	if err != nil {
		return core.DispatchStats{}, err
	}

	stats := core.DispatchStats{Claimed: len(due)}
	var dispatchErr error
	for _, claimed := range due {
		attempt, err := w.dispatcher.DeliverEvent(ctx, claimed.EndpointID, claimed.EventID)
		if err != nil {
			dispatchErr = joinErrors(dispatchErr, err)
			continue
		}
		switch attempt.Status {
		case core.DeliveryStatusDelivered:
			stats.Delivered++
		case core.DeliveryStatusRetryReady:
			stats.Retried++
		case core.DeliveryStatusDead:
			stats.Dead++
		}
	}
	return stats, dispatchErr
}

// ReclaimStale flips claims older than olderThan back to retry_ready. A claim
// only outlives olderThan when the worker that took it died before recording
// an outcome, so reclaiming keeps those deliveries from being stranded.
func (w *RedeliveryWorker) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if w == nil || w.deliveries == nil {
		return 0, fmt.Errorf("webhooks: redelivery worker is not configured")
	}
	if olderThan <= 0 {
		olderThan = DefaultStaleClaimAge
	}
	return w.deliveries.ReclaimStale(ctx, w.now().Add(-olderThan))
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
