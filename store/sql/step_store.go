package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-payments/core"
)

// StepStore is the append-only processing audit trail. There is no update
// path on purpose: recorded steps are immutable.
type StepStore struct {
	db   *bun.DB
	repo repository.Repository[*processingStepRecord]
}

func NewStepStore(db *bun.DB) (*StepStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*processingStepRecord](db, processingStepHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid step repository wiring: %w", err)
		}
	}
	return &StepStore{db: db, repo: repo}, nil
}

func (s *StepStore) Append(ctx context.Context, step core.ProcessingStep) (core.ProcessingStep, error) {
	if s == nil || s.repo == nil {
		return core.ProcessingStep{}, fmt.Errorf("sqlstore: step store is not configured")
	}
	if strings.TrimSpace(step.PaymentID) == "" {
		return core.ProcessingStep{}, fmt.Errorf("sqlstore: step payment id is required")
	}
	if strings.TrimSpace(step.Name) == "" {
		return core.ProcessingStep{}, fmt.Errorf("sqlstore: step name is required")
	}

	record := &processingStepRecord{
		ID:         strings.TrimSpace(step.ID),
		PaymentID:  strings.TrimSpace(step.PaymentID),
		Name:       strings.TrimSpace(step.Name),
		Outcome:    string(step.Outcome),
		Detail:     step.Detail,
		Error:      step.Error,
		DurationMs: step.DurationMs,
		Attempt:    step.Attempt,
		CreatedAt:  step.CreatedAt,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Attempt < 1 {
		record.Attempt = 1
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.ProcessingStep{}, err
	}
	return created.toDomain(), nil
}

func (s *StepStore) ListByPayment(ctx context.Context, paymentID string) ([]core.ProcessingStep, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: step store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("payment_id", "=", strings.TrimSpace(paymentID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ProcessingStep, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.StepLedger = (*StepStore)(nil)
