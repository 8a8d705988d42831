package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/signature"
)

// Dispatcher signs and delivers webhook events to subscribed endpoints, one
// delivery attempt row per try. Endpoints are independent: one endpoint's
// failure never delays or blocks another's delivery.
type Dispatcher struct {
	endpoints   core.EndpointStore
	events      core.EventStore
	deliveries  core.DeliveryLedger
	deadLetters core.DeadLetterStore
	secrets     core.SecretProvider
	transport   core.TransportAdapter
	policy      RetryPolicy
	config      core.WebhookConfig
	logger      core.Logger
	now         func() time.Time
}

type DispatcherOptions struct {
	Endpoints   core.EndpointStore
	Events      core.EventStore
	Deliveries  core.DeliveryLedger
	DeadLetters core.DeadLetterStore
	Secrets     core.SecretProvider
	Transport   core.TransportAdapter
	Policy      RetryPolicy
	Config      core.WebhookConfig
	Logger      core.Logger
	Now         func() time.Time
}

func NewDispatcher(options DispatcherOptions) (*Dispatcher, error) {
	if options.Endpoints == nil {
		return nil, fmt.Errorf("webhooks: endpoint store is required")
	}
	if options.Deliveries == nil {
		return nil, fmt.Errorf("webhooks: delivery ledger is required")
	}
	if options.Transport == nil {
		return nil, fmt.Errorf("webhooks: transport adapter is required")
	}

	cfg := options.Config
	defaults := core.DefaultConfig().Webhooks
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if cfg.ToleranceSeconds <= 0 {
		cfg.ToleranceSeconds = defaults.ToleranceSeconds
	}

	policy := options.Policy.normalized()
	if policy.MaxAttempts != cfg.MaxAttempts {
		policy.MaxAttempts = cfg.MaxAttempts
	}

	now := options.Now
	if now == nil {
		now = func() time.Time {
			return time.Now().UTC()
		}
	}

	return &Dispatcher{
		endpoints:   options.Endpoints,
		events:      options.Events,
		deliveries:  options.Deliveries,
		deadLetters: options.DeadLetters,
		secrets:     options.Secrets,
		transport:   options.Transport,
		policy:      policy,
		config:      cfg,
		logger:      options.Logger,
		now:         now,
	}, nil
}

var _ core.EventPublisher = (*Dispatcher)(nil)

// eventEnvelope is the wire object subscribers receive. The event time is
// serialized as `timestamp` in ISO-8601.
type eventEnvelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publish fans the event out to every active endpoint subscribed to its type.
// Per-endpoint outcomes land in the delivery ledger; Publish only fails when
// the fan-out itself cannot start.
func (d *Dispatcher) Publish(ctx context.Context, event core.WebhookEvent) error {
	if d == nil {
		return fmt.Errorf("webhooks: dispatcher is not configured")
	}
	endpoints, err := d.endpoints.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("webhooks: active endpoint listing failed: %w", err)
	}

	for _, endpoint := range endpoints {
		if !endpoint.SubscribedTo(event.Type) {
			continue
		}
		attempt, err := d.nextAttemptNumber(ctx, endpoint.ID, event.ID)
		if err != nil {
			d.logError(ctx, "attempt lookup failed", map[string]any{
				"endpoint_id": endpoint.ID,
				"event_id":    event.ID,
				"error":       err.Error(),
			})
			continue
		}
		if _, err := d.deliver(ctx, endpoint, event, attempt); err != nil {
			d.logError(ctx, "delivery bookkeeping failed", map[string]any{
				"endpoint_id": endpoint.ID,
				"event_id":    event.ID,
				"error":       err.Error(),
			})
		}
	}
	return nil
}

// DeliverEvent performs one delivery try for a single (endpoint, event) pair
// and returns the recorded attempt.
func (d *Dispatcher) DeliverEvent(ctx context.Context, endpointID, eventID string) (core.DeliveryAttempt, error) {
	if d == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("webhooks: dispatcher is not configured")
	}
	if d.events == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("webhooks: event store is required for redelivery")
	}
	endpoint, err := d.endpoints.Get(ctx, strings.TrimSpace(endpointID))
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	event, err := d.events.Get(ctx, strings.TrimSpace(eventID))
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	attempt, err := d.nextAttemptNumber(ctx, endpoint.ID, event.ID)
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	if !endpoint.Active {
		return d.recordOutcome(ctx, endpoint, event, attempt, classTerminal, 0, "endpoint is disabled", d.now())
	}
	return d.deliver(ctx, endpoint, event, attempt)
}

type deliveryClass int

const (
	classDelivered deliveryClass = iota
	classRetryable
	classTerminal
)

// classifyStatus decides what a response status means for retries. Client
// errors are terminal: the request is malformed for that endpoint and
// repeating it cannot succeed. 408 and 429 are the transient exceptions.
func classifyStatus(status int) deliveryClass {
	switch {
	case status >= 200 && status < 300:
		return classDelivered
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return classRetryable
	case status >= 400 && status < 500:
		return classTerminal
	default:
		return classRetryable
	}
}

func (d *Dispatcher) deliver(ctx context.Context, endpoint core.WebhookEndpoint, event core.WebhookEvent, attempt int) (core.DeliveryAttempt, error) {
	startedAt := d.now()

	payload, err := json.Marshal(eventEnvelope{
		ID:        event.ID,
		Type:      string(event.Type),
		Timestamp: event.OccurredAt,
		Source:    event.Source,
		Data:      event.Data,
	})
	if err != nil {
		return d.recordOutcome(ctx, endpoint, event, attempt, classTerminal, 0,
			fmt.Sprintf("payload marshal failed: %v", err), startedAt)
	}
	if int64(len(payload)) > d.config.MaxPayloadBytes {
		return d.recordOutcome(ctx, endpoint, event, attempt, classTerminal, 0,
			fmt.Sprintf("payload of %d bytes exceeds %d byte cap", len(payload), d.config.MaxPayloadBytes), startedAt)
	}
	if err := signature.CheckEndpointURL(endpoint.URL, d.config.Hardened); err != nil {
		return d.recordOutcome(ctx, endpoint, event, attempt, classTerminal, 0, err.Error(), startedAt)
	}

	secret, err := d.endpointSecret(ctx, endpoint)
	if err != nil {
		return d.recordOutcome(ctx, endpoint, event, attempt, classTerminal, 0,
			fmt.Sprintf("secret resolution failed: %v", err), startedAt)
	}

	timestamp := startedAt.Unix()
	headers := signature.Headers(timestamp, signature.Sign(secret, timestamp, payload))
	headers["Content-Type"] = "application/json"

	response, err := d.transport.Do(ctx, core.TransportRequest{
		Method:      http.MethodPost,
		URL:         endpoint.URL,
		Headers:     headers,
		Body:        payload,
		Timeout:     d.config.SendTimeout,
		Idempotency: event.ID,
	})
	if err != nil {
		return d.recordOutcome(ctx, endpoint, event, attempt, classRetryable, 0, err.Error(), startedAt)
	}

	class := classifyStatus(response.StatusCode)
	reason := ""
	if class != classDelivered {
		reason = fmt.Sprintf("endpoint returned %d", response.StatusCode)
	}
	return d.recordOutcome(ctx, endpoint, event, attempt, class, response.StatusCode, reason, startedAt)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, endpoint core.WebhookEndpoint, event core.WebhookEvent, attemptNumber int, class deliveryClass, httpStatus int, reason string, startedAt time.Time) (core.DeliveryAttempt, error) {
	now := d.now()
	attempt := core.DeliveryAttempt{
		ID:         uuid.NewString(),
		EndpointID: endpoint.ID,
		EventID:    event.ID,
		Attempt:    attemptNumber,
		HTTPStatus: httpStatus,
		Error:      reason,
		DurationMs: now.Sub(startedAt).Milliseconds(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch class {
	case classDelivered:
		attempt.Status = core.DeliveryStatusDelivered
	case classTerminal:
		attempt.Status = core.DeliveryStatusDead
	default:
		if delay, ok := d.policy.NextDelay(attemptNumber); ok {
			nextAttemptAt := now.Add(delay)
			attempt.Status = core.DeliveryStatusRetryReady
			attempt.NextAttemptAt = &nextAttemptAt
		} else {
			attempt.Status = core.DeliveryStatusDead
		}
	}

	recorded, err := d.deliveries.Record(ctx, attempt)
	if err != nil {
		return attempt, fmt.Errorf("webhooks: attempt record failed: %w", err)
	}

	if recorded.Status == core.DeliveryStatusDead {
		d.recordDeadLetter(ctx, recorded)
	}

	fields := map[string]any{
		"endpoint_id": endpoint.ID,
		"event_id":    event.ID,
		"attempt":     attemptNumber,
		"status":      string(recorded.Status),
		"http_status": httpStatus,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	if recorded.Status == core.DeliveryStatusDelivered {
		d.logInfo(ctx, "webhook delivered", fields)
	} else {
		d.logError(ctx, "webhook delivery failed", fields)
	}
	return recorded, nil
}

func (d *Dispatcher) recordDeadLetter(ctx context.Context, attempt core.DeliveryAttempt) {
	if d.deadLetters == nil {
		return
	}
	_, err := d.deadLetters.Record(ctx, core.DeadLetter{
		ID:             uuid.NewString(),
		EndpointID:     attempt.EndpointID,
		EventID:        attempt.EventID,
		TotalAttempts:  attempt.Attempt,
		LastError:      attempt.Error,
		LastHTTPStatus: attempt.HTTPStatus,
		CreatedAt:      d.now(),
	})
	if err != nil {
		d.logError(ctx, "dead letter record failed", map[string]any{
			"endpoint_id": attempt.EndpointID,
			"event_id":    attempt.EventID,
			"error":       err.Error(),
		})
	}
}

func (d *Dispatcher) nextAttemptNumber(ctx context.Context, endpointID, eventID string) (int, error) {
	latest, err := d.deliveries.LatestAttempt(ctx, endpointID, eventID)
	if err != nil {
		if isMissingAttempt(err) {
			return 1, nil
		}
		return 0, err
	}
	if latest.Attempt < 1 {
		return 1, nil
	}
	return latest.Attempt + 1, nil
}

func isMissingAttempt(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

func (d *Dispatcher) endpointSecret(ctx context.Context, endpoint core.WebhookEndpoint) (string, error) {
	if len(endpoint.EncryptedSecret) == 0 {
		return "", fmt.Errorf("webhooks: endpoint %s has no signing secret", endpoint.ID)
	}
	if d.secrets == nil {
		return string(endpoint.EncryptedSecret), nil
	}
	plaintext, err := d.secrets.Decrypt(ctx, endpoint.EncryptedSecret)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (d *Dispatcher) logInfo(ctx context.Context, message string, fields map[string]any) {
	d.log(ctx, false, message, fields)
}

func (d *Dispatcher) logError(ctx context.Context, message string, fields map[string]any) {
	d.log(ctx, true, message, fields)
}

func (d *Dispatcher) log(ctx context.Context, isError bool, message string, fields map[string]any) {
	if d == nil || d.logger == nil {
		return
	}
	logger := d.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	if isError {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}
