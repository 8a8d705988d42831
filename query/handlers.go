package query

import (
	"context"

	"github.com/goliatone/go-payments/core"
)

type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID string) (core.Payment, error)
}

type StepReader interface {
	ListByPayment(ctx context.Context, paymentID string) ([]core.ProcessingStep, error)
}

type DeliveryReader interface {
	ListByEvent(ctx context.Context, eventID string) ([]core.DeliveryAttempt, error)
}

type DeadLetterReader interface {
	ListUnresolved(ctx context.Context, limit int) ([]core.DeadLetter, error)
}

type GetPaymentQuery struct {
	reader PaymentReader
}

func NewGetPaymentQuery(reader PaymentReader) *GetPaymentQuery {
	return &GetPaymentQuery{reader: reader}
}

func (q *GetPaymentQuery) Query(ctx context.Context, msg GetPaymentMessage) (core.Payment, error) {
	if q == nil || q.reader == nil {
		return core.Payment{}, queryDependencyError("query: payment reader is required")
	}
	return q.reader.GetPayment(ctx, msg.PaymentID)
}

type ListStepsQuery struct {
	reader StepReader
}

func NewListStepsQuery(reader StepReader) *ListStepsQuery {
	return &ListStepsQuery{reader: reader}
}

func (q *ListStepsQuery) Query(ctx context.Context, msg ListStepsMessage) ([]core.ProcessingStep, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: step reader is required")
	}
	return q.reader.ListByPayment(ctx, msg.PaymentID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListByEvent(ctx, msg.EventID)
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.DeadLetter, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListUnresolved(ctx, msg.Limit)
}
