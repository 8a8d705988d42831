package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessPayment drives the collection -> conversion -> disbursement pipeline
// for a pending payment. The pending -> processing claim is a compare-and-set:
// a payment that is not pending is rejected before any provider call, so a
// losing concurrent caller produces zero side effects. Failures after the
// collection commits trigger exactly one compensating reversal.
func (s *Service) ProcessPayment(ctx context.Context, paymentID string) (ProcessResult, error) {
	if s == nil {
		return ProcessResult{}, fmt.Errorf("core: service not initialized")
	}
	startedAt := s.now()
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		mapped := s.mapError(fmt.Errorf("core: payment id is required"))
		s.observeOperation(ctx, startedAt, "payment.process", mapped, map[string]any{})
		return ProcessResult{}, mapped
	}

	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "payment.process", mapped, map[string]any{"payment_id": paymentID})
		return ProcessResult{}, mapped
	}

	claimed, err := s.payments.TransitionStatus(ctx, paymentID, PaymentStatusPending, PaymentStatusProcessing, "")
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "payment.process", mapped, map[string]any{"payment_id": paymentID})
		return ProcessResult{}, mapped
	}
	if !claimed {
		current, getErr := s.payments.Get(ctx, paymentID)
		status := payment.Status
		if getErr == nil {
			status = current.Status
		}
		mapped := StateConflictError(paymentID, status)
		s.observeOperation(ctx, startedAt, "payment.process", mapped, map[string]any{"payment_id": paymentID})
		return ProcessResult{}, mapped
	}
	payment.Status = PaymentStatusProcessing

	run := &sagaRun{service: s, payment: payment, startedAt: startedAt}
	run.recordStep(ctx, StepStatusTransition, StepOutcomeCompleted, "pending -> processing", "", startedAt)
	s.emitEvent(ctx, EventPaymentProcessing, payment, "")

	// Stage 1: collection.
	collectStart := s.now()
	collectRes, err := s.collection.Collect(ctx, CollectRequest{
		PaymentID:   payment.ID,
		AmountMinor: payment.SourceAmountMinor,
		Currency:    payment.SourceCurrency,
		PayerRef:    payment.PayerRef,
	})
	if err != nil {
		run.recordStep(ctx, StepCollection, StepOutcomeFailed, "", err.Error(), collectStart)
		return run.fail(ctx, "", fmt.Errorf("core: collection gateway rejected payment: %w", err))
	}
	run.collectionRef = collectRes.Reference
	run.recordStep(ctx, StepCollection, StepOutcomeCompleted, "collected via "+collectRes.Reference, "", collectStart)

	// Stage 2: conversion.
	convertStart := s.now()
	quote, err := s.quoteConversion(ctx, payment)
	if err != nil {
		run.recordStep(ctx, StepConversion, StepOutcomeFailed, "", err.Error(), convertStart)
		return run.fail(ctx, run.collectionRef, fmt.Errorf("core: conversion failed: %w", err))
	}
	payment.ExchangeRate = quote.Rate
	payment.TargetAmountMinor = quote.TargetAmountMinor
	if err := s.payments.SetConversion(ctx, payment.ID, quote.Rate, quote.TargetAmountMinor); err != nil {
		run.recordStep(ctx, StepConversion, StepOutcomeFailed, "", err.Error(), convertStart)
		return run.fail(ctx, run.collectionRef, fmt.Errorf("core: conversion persist failed: %w", err))
	}
	run.recordStep(ctx, StepConversion, StepOutcomeCompleted,
		fmt.Sprintf("rate %.6f, target %d %s", quote.Rate, quote.TargetAmountMinor, payment.TargetCurrency), "", convertStart)

	// Stage 3: disbursement.
	transferStart := s.now()
	transferRes, err := s.disbursement.Transfer(ctx, TransferRequest{
		PaymentID:   payment.ID,
		AmountMinor: payment.TargetAmountMinor,
		Currency:    payment.TargetCurrency,
		PayeeRef:    payment.PayeeRef,
	})
	if err != nil {
		run.recordStep(ctx, StepDisbursement, StepOutcomeFailed, "", err.Error(), transferStart)
		return run.fail(ctx, run.collectionRef, fmt.Errorf("core: disbursement gateway rejected payment: %w", err))
	}
	run.disbursementRef = transferRes.Reference
	run.recordStep(ctx, StepDisbursement, StepOutcomeCompleted, "disbursed via "+transferRes.Reference, "", transferStart)

	if err := s.payments.SetProviderRefs(ctx, payment.ID, run.collectionRef, run.disbursementRef); err != nil {
		s.logError(ctx, "provider reference persist failed", map[string]any{
			"payment_id": payment.ID,
			"error":      err.Error(),
		})
	}

	completed, err := s.payments.TransitionStatus(ctx, payment.ID, PaymentStatusProcessing, PaymentStatusCompleted, "")
	if err != nil || !completed {
		detail := "processing -> completed rejected"
		if err != nil {
			detail = err.Error()
		}
		run.recordStep(ctx, StepCompletion, StepOutcomeFailed, "", detail, s.now())
		return run.fail(ctx, run.collectionRef, fmt.Errorf("core: completion transition failed for payment %s", payment.ID))
	}
	payment.Status = PaymentStatusCompleted
	payment.CollectionRef = run.collectionRef
	payment.DisbursementRef = run.disbursementRef
	run.recordStep(ctx, StepCompletion, StepOutcomeCompleted, "processing -> completed", "", s.now())
	s.emitEvent(ctx, EventPaymentCompleted, payment, "")

	result := ProcessResult{
		PaymentID:  payment.ID,
		Status:     PaymentStatusCompleted,
		Steps:      run.steps,
		DurationMs: time.Since(startedAt).Milliseconds(),
	}
	s.observeOperation(ctx, startedAt, "payment.process", nil, map[string]any{"payment_id": payment.ID})
	return result, nil
}

func (s *Service) quoteConversion(ctx context.Context, payment Payment) (ConversionQuote, error) {
	if payment.SourceCurrency == payment.TargetCurrency {
		return ConversionQuote{Rate: 1.0, TargetAmountMinor: payment.SourceAmountMinor}, nil
	}
	quote, err := s.rates.Quote(ctx, payment.SourceCurrency, payment.TargetCurrency, payment.SourceAmountMinor)
	if err != nil {
		return ConversionQuote{}, err
	}
	if quote.Rate <= 0 {
		return ConversionQuote{}, fmt.Errorf("core: non-positive exchange rate %.6f", quote.Rate)
	}
	if quote.TargetAmountMinor <= 0 {
		quote.TargetAmountMinor = RoundHalfUp(float64(payment.SourceAmountMinor) * quote.Rate)
	}
	return quote, nil
}

// RoundHalfUp converts a fractional minor-unit amount to int64 with ties
// rounding away from zero.
func RoundHalfUp(value float64) int64 {
	if value >= 0 {
		return int64(math.Floor(value + 0.5))
	}
	return int64(math.Ceil(value - 0.5))
}

// sagaRun accumulates per-attempt bookkeeping for one ProcessPayment call.
type sagaRun struct {
	service         *Service
	payment         Payment
	startedAt       time.Time
	steps           []ProcessingStep
	collectionRef   string
	disbursementRef string
}

func (r *sagaRun) recordStep(ctx context.Context, name string, outcome StepOutcome, detail, stepErr string, stepStart time.Time) {
	s := r.service
	step := ProcessingStep{
		ID:         uuid.NewString(),
		PaymentID:  r.payment.ID,
		Name:       name,
		Outcome:    outcome,
		Detail:     detail,
		Error:      stepErr,
		DurationMs: time.Since(stepStart).Milliseconds(),
		Attempt:    1,
		CreatedAt:  s.now(),
	}
	saved, err := s.steps.Append(ctx, step)
	if err != nil {
		s.logError(ctx, "step append failed", map[string]any{
			"payment_id": r.payment.ID,
			"step":       name,
			"error":      err.Error(),
		})
		r.steps = append(r.steps, step)
		return
	}
	r.steps = append(r.steps, saved)
}

// fail finalizes a saga after a stage error: reverse the committed collection
// when one exists, move the payment to failed, and emit payment.failed. The
// original stage error is what the caller sees, even when compensation also
// fails.
func (r *sagaRun) fail(ctx context.Context, collectionRef string, cause error) (ProcessResult, error) {
	s := r.service

	if strings.TrimSpace(collectionRef) != "" {
		compStart := s.now()
		compensator := NewCompensator(s.collection, s.logger)
		reversal := compensator.Reverse(ctx, ReverseRequest{
			Reference:   collectionRef,
			AmountMinor: r.payment.SourceAmountMinor,
			Currency:    r.payment.SourceCurrency,
		})
		if reversal.Succeeded {
			r.recordStep(ctx, StepCompensation, StepOutcomeCompleted, "reversed via "+reversal.ReversalReference, "", compStart)
		} else {
			r.recordStep(ctx, StepCompensation, StepOutcomeFailed, "", reversal.Err, compStart)
			s.logError(ctx, "compensation failed, manual reconciliation required", map[string]any{
				"payment_id":     r.payment.ID,
				"collection_ref": collectionRef,
				"error":          reversal.Err,
			})
		}
	}

	reason := cause.Error()
	if _, err := s.payments.TransitionStatus(ctx, r.payment.ID, PaymentStatusProcessing, PaymentStatusFailed, reason); err != nil {
		s.logError(ctx, "failure transition persist failed", map[string]any{
			"payment_id": r.payment.ID,
			"error":      err.Error(),
		})
	}
	r.payment.Status = PaymentStatusFailed
	r.payment.LastError = reason
	s.emitEvent(ctx, EventPaymentFailed, r.payment, reason)

	mapped := s.mapError(cause)
	s.observeOperation(ctx, r.startedAt, "payment.process", mapped, map[string]any{"payment_id": r.payment.ID})
	return ProcessResult{
		PaymentID:  r.payment.ID,
		Status:     PaymentStatusFailed,
		Steps:      r.steps,
		Err:        reason,
		DurationMs: time.Since(r.startedAt).Milliseconds(),
	}, mapped
}

// emitEvent persists the event (stable ID for subscriber dedup) and hands it
// to the publisher. Event plumbing never fails the payment operation.
func (s *Service) emitEvent(ctx context.Context, eventType EventType, payment Payment, detail string) {
	if s == nil {
		return
	}
	event := WebhookEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: s.now(),
		Source:     s.config.Source,
		Data: map[string]any{
			"payment_id":          payment.ID,
			"status":              string(payment.Status),
			"source_amount_minor": payment.SourceAmountMinor,
			"source_currency":     payment.SourceCurrency,
			"target_amount_minor": payment.TargetAmountMinor,
			"target_currency":     payment.TargetCurrency,
		},
	}
	if strings.TrimSpace(detail) != "" {
		event.Data["detail"] = strings.TrimSpace(detail)
	}

	if s.events != nil {
		saved, err := s.events.Save(ctx, event)
		if err != nil {
			s.logError(ctx, "event persist failed", map[string]any{
				"event_type": string(eventType),
				"payment_id": payment.ID,
				"error":      err.Error(),
			})
		} else {
			event = saved
		}
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logError(ctx, "event publish failed", map[string]any{
			"event_id":   event.ID,
			"event_type": string(eventType),
			"payment_id": payment.ID,
			"error":      err.Error(),
		})
	}
}
