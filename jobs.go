package payments

import (
	"context"
	"fmt"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-payments/adapters/gojob"
	"github.com/goliatone/go-payments/adapters/gologger"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

// JobRuntime bundles both sides of the payment queue: enqueue helpers for
// producers and the consumer loop that drives payment processing, webhook
// redelivery, and stale-claim reclaim through go-job.
type JobRuntime struct {
	enqueuer    core.JobEnqueuer
	dequeuer    core.JobDequeuer
	runner      *gojob.Runner
	jobLogger   job.Logger
	jobProvider job.LoggerProvider
}

type JobRuntimeOptions struct {
	Enqueuer       queue.Enqueuer
	Dequeuer       queue.Dequeuer
	Retry          gojob.RetryPolicy
	LoggerProvider core.LoggerProvider
	Logger         core.Logger
}

// NewJobRuntime wires the queue around a payment processor and a redelivery
// worker. *Service and *webhooks.RedeliveryWorker satisfy the two interfaces.
func NewJobRuntime(processor gojob.PaymentProcessor, redelivery gojob.RedeliveryRunner, opts JobRuntimeOptions) (*JobRuntime, error) {
	if processor == nil {
		return nil, fmt.Errorf("payments: payment processor is required")
	}
	if redelivery == nil {
		return nil, fmt.Errorf("payments: redelivery worker is required")
	}
	if opts.Enqueuer == nil {
		return nil, fmt.Errorf("payments: queue enqueuer is required")
	}
	if opts.Dequeuer == nil {
		return nil, fmt.Errorf("payments: queue dequeuer is required")
	}

	_, logger, jobProvider, jobLogger := gologger.ResolveForJob(gologger.ComponentJobs, opts.LoggerProvider, opts.Logger)
	runner, err := gojob.NewRunner(processor, redelivery, opts.Retry, logger)
	if err != nil {
		return nil, err
	}

	return &JobRuntime{
		enqueuer:    gojob.NewEnqueuerAdapter(opts.Enqueuer),
		dequeuer:    gojob.NewDequeuerAdapter(opts.Dequeuer, opts.Retry),
		runner:      runner,
		jobLogger:   jobLogger,
		jobProvider: jobProvider,
	}, nil
}

// EnqueueProcessPayment queues a claimed payment for asynchronous
// processing.
func (r *JobRuntime) EnqueueProcessPayment(ctx context.Context, paymentID string) error {
	if r == nil || r.enqueuer == nil {
		return fmt.Errorf("payments: job runtime is not configured")
	}
	return r.enqueuer.Enqueue(ctx, gojob.NewProcessPaymentMessage(paymentID))
}

// EnqueueRedelivery queues one webhook redelivery sweep.
func (r *JobRuntime) EnqueueRedelivery(ctx context.Context, batchSize int) error {
	if r == nil || r.enqueuer == nil {
		return fmt.Errorf("payments: job runtime is not configured")
	}
	if batchSize <= 0 {
		batchSize = webhooks.DefaultRedeliveryBatchSize
	}
	return r.enqueuer.Enqueue(ctx, gojob.NewRedeliveryMessage(batchSize))
}

// EnqueueReclaim queues a sweep that returns abandoned delivery claims to
// the retry queue.
func (r *JobRuntime) EnqueueReclaim(ctx context.Context, olderThan time.Duration) error {
	if r == nil || r.enqueuer == nil {
		return fmt.Errorf("payments: job runtime is not configured")
	}
	if olderThan <= 0 {
		olderThan = webhooks.DefaultStaleClaimAge
	}
	return r.enqueuer.Enqueue(ctx, gojob.NewReclaimMessage(olderThan))
}

// RunOnce consumes and executes a single queued job.
func (r *JobRuntime) RunOnce(ctx context.Context, attempt int) error {
	if r == nil || r.runner == nil {
		return fmt.Errorf("payments: job runtime is not configured")
	}
	return r.runner.RunOnce(ctx, r.dequeuer, attempt)
}

// Run consumes jobs until the context is cancelled.
func (r *JobRuntime) Run(ctx context.Context) error {
	if r == nil || r.runner == nil {
		return fmt.Errorf("payments: job runtime is not configured")
	}
	return r.runner.Consume(ctx, r.dequeuer)
}

// JobLogger exposes the go-job logger bridge for callers wiring additional
// go-job workers next to this runtime.
func (r *JobRuntime) JobLogger() job.Logger {
	if r == nil {
		return nil
	}
	return r.jobLogger
}

func (r *JobRuntime) JobLoggerProvider() job.LoggerProvider {
	if r == nil {
		return nil
	}
	return r.jobProvider
}
