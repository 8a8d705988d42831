package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-payments/core"
)

type paymentRecord struct {
	bun.BaseModel `bun:"table:payments,alias:pay"`

	ID                string     `bun:"id,pk"`
	IdempotencyKey    *string    `bun:"idempotency_key"`
	SourceAmountMinor int64      `bun:"source_amount_minor,notnull"`
	SourceCurrency    string     `bun:"source_currency,notnull"`
	TargetAmountMinor int64      `bun:"target_amount_minor"`
	TargetCurrency    string     `bun:"target_currency,notnull"`
	ExchangeRate      float64    `bun:"exchange_rate"`
	PayerRef          string     `bun:"payer_ref,notnull"`
	PayeeRef          string     `bun:"payee_ref,notnull"`
	Status            string     `bun:"status,notnull"`
	LastError         string     `bun:"last_error"`
	CollectionRef     string     `bun:"collection_ref"`
	DisbursementRef   string     `bun:"disbursement_ref"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt       *time.Time `bun:"completed_at,nullzero"`
}

func (r *paymentRecord) toDomain() core.Payment {
	if r == nil {
		return core.Payment{}
	}
	payment := core.Payment{
		ID:                r.ID,
		SourceAmountMinor: r.SourceAmountMinor,
		SourceCurrency:    r.SourceCurrency,
		TargetAmountMinor: r.TargetAmountMinor,
		TargetCurrency:    r.TargetCurrency,
		ExchangeRate:      r.ExchangeRate,
		PayerRef:          r.PayerRef,
		PayeeRef:          r.PayeeRef,
		Status:            core.PaymentStatus(r.Status),
		LastError:         r.LastError,
		CollectionRef:     r.CollectionRef,
		DisbursementRef:   r.DisbursementRef,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		CompletedAt:       r.CompletedAt,
	}
	if r.IdempotencyKey != nil {
		payment.IdempotencyKey = *r.IdempotencyKey
	}
	return payment
}

type processingStepRecord struct {
	bun.BaseModel `bun:"table:processing_steps,alias:ps"`

	ID         string    `bun:"id,pk"`
	PaymentID  string    `bun:"payment_id,notnull"`
	Name       string    `bun:"name,notnull"`
	Outcome    string    `bun:"outcome,notnull"`
	Detail     string    `bun:"detail"`
	Error      string    `bun:"error"`
	DurationMs int64     `bun:"duration_ms"`
	Attempt    int       `bun:"attempt,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *processingStepRecord) toDomain() core.ProcessingStep {
	if r == nil {
		return core.ProcessingStep{}
	}
	return core.ProcessingStep{
		ID:         r.ID,
		PaymentID:  r.PaymentID,
		Name:       r.Name,
		Outcome:    core.StepOutcome(r.Outcome),
		Detail:     r.Detail,
		Error:      r.Error,
		DurationMs: r.DurationMs,
		Attempt:    r.Attempt,
		CreatedAt:  r.CreatedAt,
	}
}

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID         string         `bun:"id,pk"`
	Type       string         `bun:"type,notnull"`
	Source     string         `bun:"source"`
	Data       map[string]any `bun:"data,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,nullzero,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookEventRecord) toDomain() core.WebhookEvent {
	if r == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:         r.ID,
		Type:       core.EventType(r.Type),
		OccurredAt: r.OccurredAt,
		Source:     r.Source,
		Data:       copyAnyMap(r.Data),
	}
}

type webhookEndpointRecord struct {
	bun.BaseModel `bun:"table:webhook_endpoints,alias:wep"`

	ID              string    `bun:"id,pk"`
	URL             string    `bun:"url,notnull"`
	EncryptedSecret []byte    `bun:"encrypted_secret,notnull"`
	EventTypes      []string  `bun:"event_types,type:jsonb,notnull"`
	Active          bool      `bun:"active,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookEndpointRecord) toDomain() core.WebhookEndpoint {
	if r == nil {
		return core.WebhookEndpoint{}
	}
	return core.WebhookEndpoint{
		ID:              r.ID,
		URL:             r.URL,
		EncryptedSecret: append([]byte(nil), r.EncryptedSecret...),
		EventTypes:      append([]string(nil), r.EventTypes...),
		Active:          r.Active,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:delivery_attempts,alias:da"`

	ID            string     `bun:"id,pk"`
	EndpointID    string     `bun:"endpoint_id,notnull"`
	EventID       string     `bun:"event_id,notnull"`
	Attempt       int        `bun:"attempt,notnull"`
	Status        string     `bun:"status,notnull"`
	HTTPStatus    int        `bun:"http_status"`
	Error         string     `bun:"error"`
	DurationMs    int64      `bun:"duration_ms"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *deliveryAttemptRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		ID:            r.ID,
		EndpointID:    r.EndpointID,
		EventID:       r.EventID,
		Attempt:       r.Attempt,
		Status:        core.DeliveryStatus(r.Status),
		HTTPStatus:    r.HTTPStatus,
		Error:         r.Error,
		DurationMs:    r.DurationMs,
		NextAttemptAt: r.NextAttemptAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type deadLetterRecord struct {
	bun.BaseModel `bun:"table:dead_letters,alias:dl"`

	ID             string     `bun:"id,pk"`
	EndpointID     string     `bun:"endpoint_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	TotalAttempts  int        `bun:"total_attempts,notnull"`
	LastError      string     `bun:"last_error"`
	LastHTTPStatus int        `bun:"last_http_status"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt     *time.Time `bun:"resolved_at,nullzero"`
}

func (r *deadLetterRecord) toDomain() core.DeadLetter {
	if r == nil {
		return core.DeadLetter{}
	}
	return core.DeadLetter{
		ID:             r.ID,
		EndpointID:     r.EndpointID,
		EventID:        r.EventID,
		TotalAttempts:  r.TotalAttempts,
		LastError:      r.LastError,
		LastHTTPStatus: r.LastHTTPStatus,
		CreatedAt:      r.CreatedAt,
		ResolvedAt:     r.ResolvedAt,
	}
}

func copyAnyMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
