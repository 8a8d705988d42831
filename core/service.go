package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-payments/signature"
)

// Service orchestrates payment execution and webhook endpoint management.
// Construct it with NewService or Setup; the zero value is not usable.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	secretProvider  SecretProvider
	payments        PaymentStore
	steps           StepLedger
	events          EventStore
	endpoints       EndpointStore
	deliveries      DeliveryLedger
	deadLetters     DeadLetterStore
	collection      CollectionGateway
	disbursement    DisbursementGateway
	rates           RateSource
	publisher       EventPublisher
	now             func() time.Time
}

func NewService(runtime Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	if builder.paymentStore == nil {
		if provider, err := buildStoresFromFactory(builder); err != nil {
			return nil, err
		} else if provider != nil {
			builder.paymentStore = provider.PaymentStore()
			if builder.stepLedger == nil {
				builder.stepLedger = provider.StepLedger()
			}
			if builder.eventStore == nil {
				builder.eventStore = provider.EventStore()
			}
			if builder.endpointStore == nil {
				builder.endpointStore = provider.EndpointStore()
			}
			if builder.deliveryLedger == nil {
				builder.deliveryLedger = provider.DeliveryLedger()
			}
			if builder.deadLetterStore == nil {
				builder.deadLetterStore = provider.DeadLetterStore()
			}
		}
	}

	if builder.paymentStore == nil {
		return nil, fmt.Errorf("core: payment store is required")
	}
	if builder.stepLedger == nil {
		return nil, fmt.Errorf("core: step ledger is required")
	}
	if builder.collection == nil {
		return nil, fmt.Errorf("core: collection gateway is required")
	}
	if builder.disbursement == nil {
		return nil, fmt.Errorf("core: disbursement gateway is required")
	}
	if builder.rateSource == nil {
		return nil, fmt.Errorf("core: rate source is required")
	}

	cfg := builder.runtimeConfig
	if err := cfg.Validate(); err != nil {
		defaults := DefaultConfig()
		resolved, resolveErr := GoOptionsResolver{}.Resolve(defaults, defaults, builder.runtimeConfig)
		if resolveErr != nil {
			return nil, err
		}
		cfg = resolved
	}

	return &Service{
		config:          cfg,
		logger:          builder.logger,
		loggerProvider:  builder.loggerProvider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		secretProvider:  builder.secretProvider,
		payments:        builder.paymentStore,
		steps:           builder.stepLedger,
		events:          builder.eventStore,
		endpoints:       builder.endpointStore,
		deliveries:      builder.deliveryLedger,
		deadLetters:     builder.deadLetterStore,
		collection:      builder.collection,
		disbursement:    builder.disbursement,
		rates:           builder.rateSource,
		publisher:       builder.publisher,
		now:             builder.now,
	}, nil
}

// Setup layers configuration (defaults < loaded < runtime) before building
// the service.
func Setup(ctx context.Context, runtime Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	defaults := DefaultConfig()
	loaded := defaults
	if builder.configProvider != nil {
		var err error
		loaded, err = builder.configProvider.Load(ctx, defaults)
		if err != nil {
			return nil, fmt.Errorf("core: config load failed: %w", err)
		}
	}

	resolver := builder.optionsResolver
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	resolved, err := resolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return nil, fmt.Errorf("core: config resolve failed: %w", err)
	}

	return NewService(resolved, options...)
}

func buildStoresFromFactory(builder serviceBuilder) (StoreProvider, error) {
	if builder.repositoryFactory == nil || builder.persistenceClient == nil {
		return nil, nil
	}
	factory, ok := builder.repositoryFactory.(RepositoryStoreFactory)
	if !ok {
		return nil, fmt.Errorf("core: repository factory does not implement RepositoryStoreFactory")
	}
	provider, err := factory.BuildStores(builder.persistenceClient)
	if err != nil {
		return nil, fmt.Errorf("core: store build failed: %w", err)
	}
	return provider, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (Payment, error) {
	if s == nil {
		return Payment{}, fmt.Errorf("core: service not initialized")
	}
	startedAt := s.now()

	in.SourceCurrency = strings.ToUpper(strings.TrimSpace(in.SourceCurrency))
	in.TargetCurrency = strings.ToUpper(strings.TrimSpace(in.TargetCurrency))
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	in.PayerRef = strings.TrimSpace(in.PayerRef)
	in.PayeeRef = strings.TrimSpace(in.PayeeRef)

	if err := validateCreatePaymentInput(in); err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "payment.create", mapped, map[string]any{})
		return Payment{}, mapped
	}

	if in.IdempotencyKey != "" {
		existing, err := s.payments.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err == nil {
			s.observeOperation(ctx, startedAt, "payment.create", nil, map[string]any{
				"payment_id": existing.ID,
				"idempotent": true,
			})
			return existing, nil
		}
		if !isNotFoundErr(err) {
			mapped := s.mapError(err)
			s.observeOperation(ctx, startedAt, "payment.create", mapped, map[string]any{})
			return Payment{}, mapped
		}
	}

	payment, err := s.payments.Create(ctx, in)
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "payment.create", mapped, map[string]any{})
		return Payment{}, mapped
	}

	s.observeOperation(ctx, startedAt, "payment.create", nil, map[string]any{
		"payment_id": payment.ID,
	})
	return payment, nil
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if s == nil {
		return Payment{}, fmt.Errorf("core: service not initialized")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, s.mapError(fmt.Errorf("core: payment id is required"))
	}
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapError(err)
	}
	return payment, nil
}

// CancelPayment moves a pending payment to cancelled. Anything past pending
// has side effects in flight and must finish through the pipeline instead.
func (s *Service) CancelPayment(ctx context.Context, paymentID string, reason string) (Payment, error) {
	if s == nil {
		return Payment{}, fmt.Errorf("core: service not initialized")
	}
	startedAt := s.now()
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		mapped := s.mapError(fmt.Errorf("core: payment id is required"))
		s.observeOperation(ctx, startedAt, "payment.cancel", mapped, map[string]any{})
		return Payment{}, mapped
	}

	ok, err := s.payments.TransitionStatus(ctx, paymentID, PaymentStatusPending, PaymentStatusCancelled, reason)
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "payment.cancel", mapped, map[string]any{"payment_id": paymentID})
		return Payment{}, mapped
	}
	if !ok {
		current, getErr := s.payments.Get(ctx, paymentID)
		if getErr != nil {
			mapped := s.mapError(getErr)
			s.observeOperation(ctx, startedAt, "payment.cancel", mapped, map[string]any{"payment_id": paymentID})
			return Payment{}, mapped
		}
		mapped := StateConflictError(paymentID, current.Status)
		s.observeOperation(ctx, startedAt, "payment.cancel", mapped, map[string]any{"payment_id": paymentID})
		return Payment{}, mapped
	}

	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "payment.cancel", mapped, map[string]any{"payment_id": paymentID})
		return Payment{}, mapped
	}

	s.emitEvent(ctx, EventPaymentCancelled, payment, reason)
	s.observeOperation(ctx, startedAt, "payment.cancel", nil, map[string]any{"payment_id": paymentID})
	return payment, nil
}

func (s *Service) RegisterEndpoint(ctx context.Context, endpointURL string, secret string, eventTypes []string) (WebhookEndpoint, error) {
	if s == nil {
		return WebhookEndpoint{}, fmt.Errorf("core: service not initialized")
	}
	startedAt := s.now()

	if s.endpoints == nil {
		mapped := s.mapError(fmt.Errorf("core: endpoint store is not configured"))
		s.observeOperation(ctx, startedAt, "endpoint.register", mapped, map[string]any{})
		return WebhookEndpoint{}, mapped
	}

	endpointURL = strings.TrimSpace(endpointURL)
	if err := s.validateEndpointURL(endpointURL); err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "endpoint.register", mapped, map[string]any{})
		return WebhookEndpoint{}, mapped
	}
	if strings.TrimSpace(secret) == "" {
		mapped := s.mapError(fmt.Errorf("core: endpoint secret is required"))
		s.observeOperation(ctx, startedAt, "endpoint.register", mapped, map[string]any{})
		return WebhookEndpoint{}, mapped
	}

	encrypted := []byte(secret)
	if s.secretProvider != nil {
		sealed, err := s.secretProvider.Encrypt(ctx, []byte(secret))
		if err != nil {
			mapped := s.mapError(fmt.Errorf("core: secret encryption failed: %w", err))
			s.observeOperation(ctx, startedAt, "endpoint.register", mapped, map[string]any{})
			return WebhookEndpoint{}, mapped
		}
		encrypted = sealed
	}

	normalized := make([]string, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		if trimmed := strings.TrimSpace(eventType); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}

	endpoint, err := s.endpoints.Register(ctx, RegisterEndpointInput{
		URL:             endpointURL,
		EncryptedSecret: encrypted,
		EventTypes:      normalized,
	})
	if err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "endpoint.register", mapped, map[string]any{})
		return WebhookEndpoint{}, mapped
	}

	s.observeOperation(ctx, startedAt, "endpoint.register", nil, map[string]any{
		"endpoint_id": endpoint.ID,
	})
	return endpoint, nil
}

func (s *Service) DisableEndpoint(ctx context.Context, endpointID string, reason string) error {
	if s == nil {
		return fmt.Errorf("core: service not initialized")
	}
	startedAt := s.now()
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" {
		mapped := s.mapError(fmt.Errorf("core: endpoint id is required"))
		s.observeOperation(ctx, startedAt, "endpoint.disable", mapped, map[string]any{})
		return mapped
	}
	if s.endpoints == nil {
		mapped := s.mapError(fmt.Errorf("core: endpoint store is not configured"))
		s.observeOperation(ctx, startedAt, "endpoint.disable", mapped, map[string]any{"endpoint_id": endpointID})
		return mapped
	}

	if err := s.endpoints.SetActive(ctx, endpointID, false); err != nil {
		mapped := s.mapError(err)
		s.observeOperation(ctx, startedAt, "endpoint.disable", mapped, map[string]any{"endpoint_id": endpointID})
		return mapped
	}

	s.observeOperation(ctx, startedAt, "endpoint.disable", nil, map[string]any{
		"endpoint_id": endpointID,
		"reason":      strings.TrimSpace(reason),
	})
	return nil
}

// validateEndpointURL applies the same admission policy the dispatcher
// enforces before sending, so a URL accepted at registration is also
// deliverable.
func (s *Service) validateEndpointURL(raw string) error {
	hardened := s != nil && s.config.Webhooks.Hardened
	if err := signature.CheckEndpointURL(raw, hardened); err != nil {
		return fmt.Errorf("core: invalid endpoint url: %w", err)
	}
	return nil
}

func validateCreatePaymentInput(in CreatePaymentInput) error {
	if in.SourceAmountMinor <= 0 {
		return fmt.Errorf("%w: source amount %d", ErrInvalidAmount, in.SourceAmountMinor)
	}
	if err := validateCurrency(in.SourceCurrency); err != nil {
		return err
	}
	if err := validateCurrency(in.TargetCurrency); err != nil {
		return err
	}
	if in.PayerRef == "" {
		return fmt.Errorf("core: payer reference is required")
	}
	if in.PayeeRef == "" {
		return fmt.Errorf("core: payee reference is required")
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return paymentsErrorMapper(err)
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrEndpointNotFound) {
		return true
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) && rich.Category == goerrors.CategoryNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
