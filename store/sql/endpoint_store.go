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

type EndpointStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEndpointRecord]
}

func NewEndpointStore(db *bun.DB) (*EndpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEndpointRecord](db, webhookEndpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid endpoint repository wiring: %w", err)
		}
	}
	return &EndpointStore{db: db, repo: repo}, nil
}

func (s *EndpointStore) Register(ctx context.Context, in core.RegisterEndpointInput) (core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	if strings.TrimSpace(in.URL) == "" {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: endpoint url is required")
	}
	if len(in.EncryptedSecret) == 0 {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: endpoint secret is required")
	}

	now := time.Now().UTC()
	eventTypes := make([]string, 0, len(in.EventTypes))
	for _, eventType := range in.EventTypes {
		if trimmed := strings.TrimSpace(eventType); trimmed != "" {
			eventTypes = append(eventTypes, trimmed)
		}
	}

	record := &webhookEndpointRecord{
		ID:              uuid.NewString(),
		URL:             strings.TrimSpace(in.URL),
		EncryptedSecret: append([]byte(nil), in.EncryptedSecret...),
		EventTypes:      eventTypes,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	return created.toDomain(), nil
}

func (s *EndpointStore) Get(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNoRows(err) {
			return core.WebhookEndpoint{}, fmt.Errorf("%w: %s", core.ErrEndpointNotFound, strings.TrimSpace(id))
		}
		return core.WebhookEndpoint{}, err
	}
	return record.toDomain(), nil
}

func (s *EndpointStore) ListActive(ctx context.Context) ([]core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookEndpoint, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EndpointStore) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookEndpointRecord)(nil)).
		Set("active = ?", active).
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
		return fmt.Errorf("%w: %s", core.ErrEndpointNotFound, strings.TrimSpace(id))
	}
	return nil
}

var _ core.EndpointStore = (*EndpointStore)(nil)
