package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-payments/core"
)

type PaymentStore struct {
	db   *bun.DB
	repo repository.Repository[*paymentRecord]
}

func NewPaymentStore(db *bun.DB) (*PaymentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*paymentRecord](db, paymentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid payment repository wiring: %w", err)
		}
	}
	return &PaymentStore{db: db, repo: repo}, nil
}

func (s *PaymentStore) Create(ctx context.Context, in core.CreatePaymentInput) (core.Payment, error) {
	if s == nil || s.repo == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	now := time.Now().UTC()
	record := &paymentRecord{
		ID:                uuid.NewString(),
		SourceAmountMinor: in.SourceAmountMinor,
		SourceCurrency:    strings.ToUpper(strings.TrimSpace(in.SourceCurrency)),
		TargetCurrency:    strings.ToUpper(strings.TrimSpace(in.TargetCurrency)),
		PayerRef:          strings.TrimSpace(in.PayerRef),
		PayeeRef:          strings.TrimSpace(in.PayeeRef),
		Status:            string(core.PaymentStatusPending),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if trimmed := strings.TrimSpace(in.IdempotencyKey); trimmed != "" {
		record.IdempotencyKey = &trimmed
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if isUniqueViolation(err) && record.IdempotencyKey != nil {
			return s.GetByIdempotencyKey(ctx, *record.IdempotencyKey)
		}
		return core.Payment{}, err
	}
	return created.toDomain(), nil
}

func (s *PaymentStore) Get(ctx context.Context, id string) (core.Payment, error) {
	if s == nil || s.repo == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNoRows(err) {
			return core.Payment{}, fmt.Errorf("%w: %s", core.ErrPaymentNotFound, strings.TrimSpace(id))
		}
		return core.Payment{}, err
	}
	return record.toDomain(), nil
}

func (s *PaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (core.Payment, error) {
	if s == nil || s.db == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Payment{}, fmt.Errorf("sqlstore: idempotency key is required")
	}
	record := &paymentRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Payment{}, fmt.Errorf("%w: idempotency key %s", core.ErrPaymentNotFound, key)
		}
		return core.Payment{}, err
	}
	return record.toDomain(), nil
}

// TransitionStatus is a single conditional update: the row moves from `from`
// to `to` only if it is still in `from` when the statement runs. A false
// return means some concurrent writer got there first.
func (s *PaymentStore) TransitionStatus(ctx context.Context, id string, from, to core.PaymentStatus, reason string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: payment store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: payment id is required")
	}

	now := time.Now().UTC()
	query := s.db.NewUpdate().
		Model((*paymentRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", string(from))

	switch to {
	case core.PaymentStatusCompleted:
		query = query.Set("completed_at = ?", now).Set("last_error = ?", "")
	case core.PaymentStatusProcessing:
		query = query.Set("last_error = ?", "")
	default:
		if trimmed := strings.TrimSpace(reason); trimmed != "" {
			query = query.Set("last_error = ?", trimmed)
		}
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, fmt.Errorf("%w: %s", core.ErrPaymentNotFound, id)
		}
		return false, nil
	}
	return true, nil
}

func (s *PaymentStore) SetProviderRefs(ctx context.Context, id string, collectionRef, disbursementRef string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: payment store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*paymentRecord)(nil)).
		Set("collection_ref = ?", strings.TrimSpace(collectionRef)).
		Set("disbursement_ref = ?", strings.TrimSpace(disbursementRef)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrPaymentNotFound, strings.TrimSpace(id))
	}
	return nil
}

func (s *PaymentStore) SetConversion(ctx context.Context, id string, rate float64, targetAmountMinor int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: payment store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*paymentRecord)(nil)).
		Set("exchange_rate = ?", rate).
		Set("target_amount_minor = ?", targetAmountMinor).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrPaymentNotFound, strings.TrimSpace(id))
	}
	return nil
}

func (s *PaymentStore) exists(ctx context.Context, id string) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*paymentRecord)(nil)).
		Where("?TableAlias.id = ?", id).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no rows")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
