package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type CreatePaymentInput struct {
	IdempotencyKey    string
	SourceAmountMinor int64
	SourceCurrency    string
	TargetCurrency    string
	PayerRef          string
	PayeeRef          string
	Metadata          map[string]any
}

// PaymentStore persists payments. TransitionStatus must be a single
// conditional update (compare-and-set against `from`), not a read followed by
// a write; it returns false when the payment was not in `from`.
type PaymentStore interface {
	Create(ctx context.Context, in CreatePaymentInput) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Payment, error)
	TransitionStatus(ctx context.Context, id string, from, to PaymentStatus, reason string) (bool, error)
	SetProviderRefs(ctx context.Context, id string, collectionRef, disbursementRef string) error
	SetConversion(ctx context.Context, id string, rate float64, targetAmountMinor int64) error
}

// StepLedger is append-only. Implementations must never mutate a recorded
// step.
type StepLedger interface {
	Append(ctx context.Context, step ProcessingStep) (ProcessingStep, error)
	ListByPayment(ctx context.Context, paymentID string) ([]ProcessingStep, error)
}

type EventStore interface {
	Save(ctx context.Context, event WebhookEvent) (WebhookEvent, error)
	Get(ctx context.Context, id string) (WebhookEvent, error)
}

type RegisterEndpointInput struct {
	URL             string
	EncryptedSecret []byte
	EventTypes      []string
}

type EndpointStore interface {
	Register(ctx context.Context, in RegisterEndpointInput) (WebhookEndpoint, error)
	Get(ctx context.Context, id string) (WebhookEndpoint, error)
	ListActive(ctx context.Context) ([]WebhookEndpoint, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// DeliveryLedger tracks attempts per (endpoint, event). ClaimDue atomically
// claims retry_ready rows whose NextAttemptAt has passed so only one worker
// redelivers each. ReclaimStale releases claims abandoned by a crashed worker:
// rows still pending whose UpdatedAt is at or before `before` go back to
// retry_ready so a later sweep can claim them again.
type DeliveryLedger interface {
	Record(ctx context.Context, attempt DeliveryAttempt) (DeliveryAttempt, error)
	LatestAttempt(ctx context.Context, endpointID, eventID string) (DeliveryAttempt, error)
	ListByEvent(ctx context.Context, eventID string) ([]DeliveryAttempt, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]DeliveryAttempt, error)
	ReclaimStale(ctx context.Context, before time.Time) (int, error)
}

type DeadLetterStore interface {
	Record(ctx context.Context, letter DeadLetter) (DeadLetter, error)
	ListUnresolved(ctx context.Context, limit int) ([]DeadLetter, error)
	Resolve(ctx context.Context, id string) error
}

type CollectRequest struct {
	PaymentID   string
	AmountMinor int64
	Currency    string
	PayerRef    string
}

type CollectResult struct {
	Reference string
	Metadata  map[string]any
}

type ReverseRequest struct {
	Reference   string
	AmountMinor int64
	Currency    string
}

type ReverseResult struct {
	ReversalReference string
	Metadata          map[string]any
}

type TransferRequest struct {
	PaymentID   string
	AmountMinor int64
	Currency    string
	PayeeRef    string
}

type TransferResult struct {
	Reference           string
	EstimatedSettlement *time.Time
	Metadata            map[string]any
}

// CollectionGateway pulls funds from the payer into custody. Reverse is the
// compensating action for a committed Collect.
type CollectionGateway interface {
	Collect(ctx context.Context, req CollectRequest) (CollectResult, error)
	Reverse(ctx context.Context, req ReverseRequest) (ReverseResult, error)
	HealthCheck(ctx context.Context) HealthStatus
}

// DisbursementGateway pushes funds out to the payee.
type DisbursementGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	HealthCheck(ctx context.Context) HealthStatus
}

type ConversionQuote struct {
	Rate              float64
	TargetAmountMinor int64
}

type RateSource interface {
	Quote(ctx context.Context, sourceCurrency, targetCurrency string, amountMinor int64) (ConversionQuote, error)
}

// EventPublisher hands terminal and transition events to the webhook
// subsystem. Implementations are fire-and-forget from the orchestrator's
// perspective; delivery bookkeeping is the dispatcher's job.
type EventPublisher interface {
	Publish(ctx context.Context, event WebhookEvent) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type StoreProvider interface {
	PaymentStore() PaymentStore
	StepLedger() StepLedger
	EventStore() EventStore
	EndpointStore() EndpointStore
	DeliveryLedger() DeliveryLedger
	DeadLetterStore() DeadLetterStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Dead      int
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type ProcessResult struct {
	PaymentID  string
	Status     PaymentStatus
	Steps      []ProcessingStep
	Err        string
	DurationMs int64
}

type ReversalResult struct {
	Succeeded         bool
	ReversalReference string
	Err               string
}

// PaymentService is the mutating surface consumed by the command and query
// packages.
type PaymentService interface {
	CreatePayment(ctx context.Context, in CreatePaymentInput) (Payment, error)
	ProcessPayment(ctx context.Context, paymentID string) (ProcessResult, error)
	CancelPayment(ctx context.Context, paymentID string, reason string) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	RegisterEndpoint(ctx context.Context, url string, secret string, eventTypes []string) (WebhookEndpoint, error)
	DisableEndpoint(ctx context.Context, endpointID string, reason string) error
}
