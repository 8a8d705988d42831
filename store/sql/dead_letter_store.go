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

type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterRecord](db, deadLetterHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter repository wiring: %w", err)
		}
	}
	return &DeadLetterStore{db: db, repo: repo}, nil
}

func (s *DeadLetterStore) Record(ctx context.Context, letter core.DeadLetter) (core.DeadLetter, error) {
	if s == nil || s.repo == nil {
		return core.DeadLetter{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	if strings.TrimSpace(letter.EndpointID) == "" || strings.TrimSpace(letter.EventID) == "" {
		return core.DeadLetter{}, fmt.Errorf("sqlstore: endpoint id and event id are required")
	}

	record := &deadLetterRecord{
		ID:             strings.TrimSpace(letter.ID),
		EndpointID:     strings.TrimSpace(letter.EndpointID),
		EventID:        strings.TrimSpace(letter.EventID),
		TotalAttempts:  letter.TotalAttempts,
		LastError:      letter.LastError,
		LastHTTPStatus: letter.LastHTTPStatus,
		CreatedAt:      letter.CreatedAt,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.DeadLetter{}, err
	}
	return created.toDomain(), nil
}

func (s *DeadLetterStore) ListUnresolved(ctx context.Context, limit int) ([]core.DeadLetter, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	query := s.db.NewSelect().
		Model((*deadLetterRecord)(nil)).
		Where("?TableAlias.resolved_at IS NULL").
		OrderExpr("?TableAlias.created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []deadLetterRecord
	if err := query.Scan(ctx, &records); err != nil {
		return nil, err
	}
	out := make([]core.DeadLetter, 0, len(records))
	for index := range records {
		out = append(out, records[index].toDomain())
	}
	return out, nil
}

func (s *DeadLetterStore) Resolve(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*deadLetterRecord)(nil)).
		Set("resolved_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("resolved_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: unresolved dead letter %s not found", strings.TrimSpace(id))
	}
	return nil
}

var _ core.DeadLetterStore = (*DeadLetterStore)(nil)
