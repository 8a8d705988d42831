package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPaymentNotFound                = errors.New("core: payment not found")
	ErrInvalidPaymentStatusTransition = errors.New("core: invalid payment status transition")
	ErrInvalidCurrency                = errors.New("core: invalid currency code")
	ErrInvalidAmount                  = errors.New("core: amount must be positive")
	ErrEndpointNotFound               = errors.New("core: webhook endpoint not found")
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Payment is the unit of work the orchestrator drives. Amounts are minor
// units (cents) to keep arithmetic exact.
type Payment struct {
	ID                string
	IdempotencyKey    string
	SourceAmountMinor int64
	SourceCurrency    string
	TargetAmountMinor int64
	TargetCurrency    string
	ExchangeRate      float64
	PayerRef          string
	PayeeRef          string
	Status            PaymentStatus
	LastError         string
	CollectionRef     string
	DisbursementRef   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

func (p *Payment) TransitionTo(status PaymentStatus, reason string, now time.Time) error {
	if p == nil {
		return nil
	}
	if p.Status == status {
		p.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			p.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !paymentTransitionAllowed(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentStatusTransition, p.Status, status)
	}
	p.Status = status
	p.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		p.LastError = strings.TrimSpace(reason)
	}
	switch status {
	case PaymentStatusCompleted:
		completedAt := now
		p.CompletedAt = &completedAt
		p.LastError = ""
	case PaymentStatusProcessing:
		p.LastError = ""
	}
	return nil
}

func (p *Payment) Terminal() bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

func paymentTransitionAllowed(current, next PaymentStatus) bool {
	allowed := map[PaymentStatus]map[PaymentStatus]struct{}{
		PaymentStatusPending: {
			PaymentStatusProcessing: {},
			PaymentStatusCancelled:  {},
		},
		PaymentStatusProcessing: {
			PaymentStatusCompleted: {},
			PaymentStatusFailed:    {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("core: payment id is required")
	}
	if p.SourceAmountMinor <= 0 {
		return fmt.Errorf("%w: source amount %d", ErrInvalidAmount, p.SourceAmountMinor)
	}
	if err := validateCurrency(p.SourceCurrency); err != nil {
		return err
	}
	if err := validateCurrency(p.TargetCurrency); err != nil {
		return err
	}
	if strings.TrimSpace(p.PayerRef) == "" {
		return fmt.Errorf("core: payer reference is required")
	}
	if strings.TrimSpace(p.PayeeRef) == "" {
		return fmt.Errorf("core: payee reference is required")
	}
	return nil
}

func validateCurrency(code string) error {
	trimmed := strings.TrimSpace(strings.ToUpper(code))
	if len(trimmed) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range trimmed {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return nil
}

type StepOutcome string

const (
	StepOutcomeCompleted StepOutcome = "completed"
	StepOutcomeFailed    StepOutcome = "failed"
)

const (
	StepStatusTransition = "status_transition"
	StepCollection       = "collection"
	StepConversion       = "conversion"
	StepDisbursement     = "disbursement"
	StepCompensation     = "compensation"
	StepCompletion       = "completion"
)

// ProcessingStep is an append-only audit record. One row per pipeline stage
// per attempt; rows are never mutated after the write.
type ProcessingStep struct {
	ID         string
	PaymentID  string
	Name       string
	Outcome    StepOutcome
	Detail     string
	Error      string
	DurationMs int64
	Attempt    int
	CreatedAt  time.Time
}

type EventType string

const (
	EventPaymentProcessing EventType = "payment.processing"
	EventPaymentCompleted  EventType = "payment.completed"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentCancelled  EventType = "payment.cancelled"
)

// WebhookEvent identity is stable across redeliveries so subscribers can
// deduplicate on ID.
type WebhookEvent struct {
	ID         string
	Type       EventType
	OccurredAt time.Time
	Source     string
	Data       map[string]any
}

type WebhookEndpoint struct {
	ID              string
	URL             string
	EncryptedSecret []byte
	EventTypes      []string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubscribedTo reports whether the endpoint wants eventType. An empty
// subscription list means all event types.
func (e WebhookEndpoint) SubscribedTo(eventType EventType) bool {
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, candidate := range e.EventTypes {
		if strings.EqualFold(strings.TrimSpace(candidate), string(eventType)) {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusRetryReady DeliveryStatus = "retry_ready"
	DeliveryStatusDead       DeliveryStatus = "dead"
)

// DeliveryAttempt is one row per try. Attempt numbers are 1-based and
// strictly increasing per (endpoint, event). NextAttemptAt is set only while
// the attempt count is below the retry ceiling.
type DeliveryAttempt struct {
	ID            string
	EndpointID    string
	EventID       string
	Attempt       int
	Status        DeliveryStatus
	HTTPStatus    int
	Error         string
	DurationMs    int64
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type DeadLetter struct {
	ID             string
	EndpointID     string
	EventID        string
	TotalAttempts  int
	LastError      string
	LastHTTPStatus int
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

type HealthState string

const (
	HealthStateUp   HealthState = "up"
	HealthStateDown HealthState = "down"
)

type HealthStatus struct {
	State     HealthState
	LatencyMs int64
	Detail    string
}
