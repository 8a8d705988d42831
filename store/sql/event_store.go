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

type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

// Save persists the event under its stable ID. Saving the same event twice
// returns the stored row instead of failing, so emit paths stay idempotent.
// The insert goes through bun directly: caller-supplied IDs are not
// constrained to UUIDs and must survive as-is.
func (s *EventStore) Save(ctx context.Context, event core.WebhookEvent) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(string(event.Type)) == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event type is required")
	}

	record := &webhookEventRecord{
		ID:         strings.TrimSpace(event.ID),
		Type:       string(event.Type),
		Source:     strings.TrimSpace(event.Source),
		Data:       copyAnyMap(event.Data),
		OccurredAt: event.OccurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = record.CreatedAt
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.Get(ctx, record.ID)
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) Get(ctx context.Context, id string) (core.WebhookEvent, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNoRows(err) {
			return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event %s not found", strings.TrimSpace(id))
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

var _ core.EventStore = (*EventStore)(nil)
