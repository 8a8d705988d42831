package payments

import (
	"context"

	"github.com/goliatone/go-payments/adapters/gologger"
	"github.com/goliatone/go-payments/core"
)

type Config = core.Config

type WebhookConfig = core.WebhookConfig

type Option = core.Option

type Service = core.Service

type PaymentService = core.PaymentService

type Payment = core.Payment
type PaymentStatus = core.PaymentStatus
type ProcessingStep = core.ProcessingStep
type ProcessResult = core.ProcessResult
type CreatePaymentInput = core.CreatePaymentInput

type WebhookEvent = core.WebhookEvent
type WebhookEndpoint = core.WebhookEndpoint
type DeliveryAttempt = core.DeliveryAttempt
type DeadLetter = core.DeadLetter

type PaymentStore = core.PaymentStore
type StepLedger = core.StepLedger
type EventStore = core.EventStore
type EndpointStore = core.EndpointStore
type DeliveryLedger = core.DeliveryLedger
type DeadLetterStore = core.DeadLetterStore

type CollectionGateway = core.CollectionGateway
type DisbursementGateway = core.DisbursementGateway
type RateSource = core.RateSource
type SecretProvider = core.SecretProvider
type EventPublisher = core.EventPublisher
type TransportAdapter = core.TransportAdapter

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithSecretProvider      = core.WithSecretProvider
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithPaymentStore        = core.WithPaymentStore
	WithStepLedger          = core.WithStepLedger
	WithEventStore          = core.WithEventStore
	WithEndpointStore       = core.WithEndpointStore
	WithDeliveryLedger      = core.WithDeliveryLedger
	WithDeadLetterStore     = core.WithDeadLetterStore
	WithCollectionGateway   = core.WithCollectionGateway
	WithDisbursementGateway = core.WithDisbursementGateway
	WithRateSource          = core.WithRateSource
	WithEventPublisher      = core.WithEventPublisher
	WithClock               = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, withResolvedLogging(opts)...)
}

func Setup(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(ctx, cfg, withResolvedLogging(opts)...)
}

// withResolvedLogging seeds the logger options through the shared resolver so
// the service component logs the same way the job and webhook runtimes do.
// Caller-supplied options come last and win.
func withResolvedLogging(opts []Option) []Option {
	provider, logger := gologger.Resolve(gologger.ComponentService, nil, nil)
	base := []Option{
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
	}
	return append(base, opts...)
}
