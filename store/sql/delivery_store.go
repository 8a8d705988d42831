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

type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, deliveryAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo}, nil
}

func (s *DeliveryStore) Record(ctx context.Context, attempt core.DeliveryAttempt) (core.DeliveryAttempt, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if strings.TrimSpace(attempt.EndpointID) == "" || strings.TrimSpace(attempt.EventID) == "" {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: endpoint id and event id are required")
	}

	now := time.Now().UTC()
	record := &deliveryAttemptRecord{
		ID:            strings.TrimSpace(attempt.ID),
		EndpointID:    strings.TrimSpace(attempt.EndpointID),
		EventID:       strings.TrimSpace(attempt.EventID),
		Attempt:       attempt.Attempt,
		Status:        string(attempt.Status),
		HTTPStatus:    attempt.HTTPStatus,
		Error:         attempt.Error,
		DurationMs:    attempt.DurationMs,
		NextAttemptAt: attempt.NextAttemptAt,
		CreatedAt:     attempt.CreatedAt,
		UpdatedAt:     now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Attempt < 1 {
		record.Attempt = 1
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	return created.toDomain(), nil
}

func (s *DeliveryStore) LatestAttempt(ctx context.Context, endpointID, eventID string) (core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record := &deliveryAttemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.endpoint_id = ?", strings.TrimSpace(endpointID)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		OrderExpr("?TableAlias.attempt DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery attempt not found for endpoint %s event %s",
				strings.TrimSpace(endpointID), strings.TrimSpace(eventID))
		}
		return core.DeliveryAttempt{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) ListByEvent(ctx context.Context, eventID string) ([]core.DeliveryAttempt, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("event_id", "=", strings.TrimSpace(eventID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// ClaimDue atomically flips due retry_ready rows to pending and returns them.
// The nested status check keeps concurrent workers from claiming the same
// row twice.
func (s *DeliveryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}

	var records []deliveryAttemptRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM delivery_attempts
	WHERE status = ?
	  AND next_attempt_at IS NOT NULL
	  AND next_attempt_at <= ?
	ORDER BY next_attempt_at ASC
	LIMIT ?
)
UPDATE delivery_attempts
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	endpoint_id,
	event_id,
	attempt,
	status,
	http_status,
	error,
	duration_ms,
	next_attempt_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.DeliveryStatusRetryReady),
			now.UTC(),
			limit,
			string(core.DeliveryStatusPending),
			now.UTC(),
			string(core.DeliveryStatusRetryReady),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.DeliveryAttempt, 0, len(records))
	for index := range records {
		out = append(out, records[index].toDomain())
	}
	return out, nil
}

// ReclaimStale releases claims left behind by a worker that died mid-batch.
// Only ClaimDue ever writes the pending status, so any pending row whose
// updated_at is at or before the cutoff is an abandoned claim. NextAttemptAt
// survives the claim, which is what makes the flip back safe.
func (s *DeliveryStore) ReclaimStale(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery store is not configured")
	}

	result, err := s.db.NewUpdate().
		Model((*deliveryAttemptRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusRetryReady)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("?TableAlias.status = ?", string(core.DeliveryStatusPending)).
		Where("?TableAlias.updated_at <= ?", before.UTC()).
		Where("?TableAlias.next_attempt_at IS NOT NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(reclaimed), nil
}

var _ core.DeliveryLedger = (*DeliveryStore)(nil)
