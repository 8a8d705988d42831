package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

const (
	ParamPaymentID = "payment_id"
	ParamBatchSize = "batch_size"
	ParamOlderThan = "older_than_seconds"
)

// PaymentProcessor is the slice of the payment service the job runner needs.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, paymentID string) (core.ProcessResult, error)
}

// RedeliveryRunner drains due webhook deliveries and releases stale claims.
type RedeliveryRunner interface {
	DispatchDue(ctx context.Context, batchSize int) (core.DispatchStats, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Runner executes queued payment jobs. It is the consumer side of the queue:
// NewProcessPaymentMessage and friends build the producer side.
type Runner struct {
	payments   PaymentProcessor
	redelivery RedeliveryRunner
	policy     RetryPolicy
	logger     core.Logger
}

func NewRunner(payments PaymentProcessor, redelivery RedeliveryRunner, policy RetryPolicy, logger core.Logger) (*Runner, error) {
	if payments == nil {
		return nil, fmt.Errorf("gojob: payment processor is required")
	}
	if redelivery == nil {
		return nil, fmt.Errorf("gojob: redelivery runner is required")
	}
	return &Runner{
		payments:   payments,
		redelivery: redelivery,
		policy:     policy,
		logger:     logger,
	}, nil
}

// NewProcessPaymentMessage builds the queue message that drives one payment
// through the pipeline. The idempotency key pins the payment so duplicate
// enqueues collapse.
func NewProcessPaymentMessage(paymentID string) *core.JobExecutionMessage {
	paymentID = strings.TrimSpace(paymentID)
	return &core.JobExecutionMessage{
		JobID:          JobIDProcessPayment,
		Parameters:     map[string]any{ParamPaymentID: paymentID},
		IdempotencyKey: JobIDProcessPayment + ":" + paymentID,
		DedupPolicy:    "drop",
	}
}

// NewRedeliveryMessage builds the periodic webhook redelivery sweep message.
func NewRedeliveryMessage(batchSize int) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDRedeliverWebhooks,
		Parameters:     map[string]any{ParamBatchSize: batchSize},
		IdempotencyKey: JobIDRedeliverWebhooks,
		DedupPolicy:    "drop",
	}
}

// NewReclaimMessage builds the sweep that hands abandoned delivery claims
// back to the retry queue.
func NewReclaimMessage(olderThan time.Duration) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDReclaimDeliveries,
		Parameters:     map[string]any{ParamOlderThan: int64(olderThan / time.Second)},
		IdempotencyKey: JobIDReclaimDeliveries,
		DedupPolicy:    "drop",
	}
}

// Handle executes a single queued message.
func (r *Runner) Handle(ctx context.Context, msg *core.JobExecutionMessage) error {
	if r == nil || r.payments == nil || r.redelivery == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}

	switch strings.TrimSpace(msg.JobID) {
	case JobIDProcessPayment:
		paymentID := paramString(msg.Parameters, ParamPaymentID)
		if paymentID == "" {
			return fmt.Errorf("gojob: %s requires the %s parameter", JobIDProcessPayment, ParamPaymentID)
		}
		result, err := r.payments.ProcessPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		r.info("payment job finished", "payment_id", result.PaymentID, "status", string(result.Status))
		return nil
	case JobIDRedeliverWebhooks:
		stats, err := r.redelivery.DispatchDue(ctx, paramInt(msg.Parameters, ParamBatchSize))
		if err != nil {
			return err
		}
		r.info("redelivery job finished",
			"claimed", stats.Claimed,
			"delivered", stats.Delivered,
			"retried", stats.Retried,
			"dead", stats.Dead,
		)
		return nil
	case JobIDReclaimDeliveries:
		olderThan := time.Duration(paramInt(msg.Parameters, ParamOlderThan)) * time.Second
		reclaimed, err := r.redelivery.ReclaimStale(ctx, olderThan)
		if err != nil {
			return err
		}
		r.info("reclaim job finished", "reclaimed", reclaimed)
		return nil
	}
	return fmt.Errorf("gojob: unknown job id %q", msg.JobID)
}

// RunOnce pulls one delivery off the queue and executes it, acking on
// success and nacking through the retry policy on failure. The attempt
// counter only feeds the nack policy; redelivery accounting lives in the
// queue itself.
func (r *Runner) RunOnce(ctx context.Context, dequeuer core.JobDequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	if err := r.Handle(ctx, delivery.Message()); err != nil {
		r.error("job failed", "error", err.Error())
		nack := core.JobNackOptions{Requeue: true, Reason: err.Error(), Delay: r.policy.MaxDelay}
		if nacker, ok := delivery.(interface {
			NackForAttempt(context.Context, core.JobNackOptions, int) error
		}); ok {
			return nacker.NackForAttempt(ctx, nack, attempt)
		}
		return delivery.Nack(ctx, nack)
	}
	return delivery.Ack(ctx)
}

// Consume runs the dequeue loop until the context is cancelled.
func (r *Runner) Consume(ctx context.Context, dequeuer core.JobDequeuer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.RunOnce(ctx, dequeuer, 0); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.error("dequeue loop error", "error", err.Error())
		}
	}
}

func (r *Runner) info(msg string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

func (r *Runner) error(msg string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Error(msg, args...)
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	raw, ok := params[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return strings.TrimSpace(fmt.Sprint(raw))
	}
	return strings.TrimSpace(value)
}

// paramInt tolerates the numeric types JSON transports hand back.
func paramInt(params map[string]any, key string) int {
	if len(params) == 0 {
		return 0
	}
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}
