package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

type memPaymentStore struct {
	mu       sync.Mutex
	payments map[string]Payment
	sequence int
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{payments: map[string]Payment{}}
}

func (s *memPaymentStore) Create(_ context.Context, in CreatePaymentInput) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	now := time.Now().UTC()
	payment := Payment{
		ID:                fmt.Sprintf("pay-%d", s.sequence),
		IdempotencyKey:    in.IdempotencyKey,
		SourceAmountMinor: in.SourceAmountMinor,
		SourceCurrency:    in.SourceCurrency,
		TargetCurrency:    in.TargetCurrency,
		PayerRef:          in.PayerRef,
		PayeeRef:          in.PayeeRef,
		Status:            PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.payments[payment.ID] = payment
	return payment, nil
}

func (s *memPaymentStore) Get(_ context.Context, id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *memPaymentStore) GetByIdempotencyKey(_ context.Context, key string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, payment := range s.payments {
		if payment.IdempotencyKey == key && key != "" {
			return payment, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (s *memPaymentStore) TransitionStatus(_ context.Context, id string, from, to PaymentStatus, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return false, ErrPaymentNotFound
	}
	if payment.Status != from {
		return false, nil
	}
	if err := payment.TransitionTo(to, reason, time.Now().UTC()); err != nil {
		return false, err
	}
	s.payments[id] = payment
	return true, nil
}

func (s *memPaymentStore) SetProviderRefs(_ context.Context, id string, collectionRef, disbursementRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.CollectionRef = collectionRef
	payment.DisbursementRef = disbursementRef
	s.payments[id] = payment
	return nil
}

func (s *memPaymentStore) SetConversion(_ context.Context, id string, rate float64, targetAmountMinor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.ExchangeRate = rate
	payment.TargetAmountMinor = targetAmountMinor
	s.payments[id] = payment
	return nil
}

func (s *memPaymentStore) seed(payment Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[payment.ID] = payment
}

type memStepLedger struct {
	mu    sync.Mutex
	steps []ProcessingStep
}

func (l *memStepLedger) Append(_ context.Context, step ProcessingStep) (ProcessingStep, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
	return step, nil
}

func (l *memStepLedger) ListByPayment(_ context.Context, paymentID string) ([]ProcessingStep, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []ProcessingStep{}
	for _, step := range l.steps {
		if step.PaymentID == paymentID {
			out = append(out, step)
		}
	}
	return out, nil
}

func (l *memStepLedger) names(paymentID string) []string {
	steps, _ := l.ListByPayment(context.Background(), paymentID)
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.Name+":"+string(step.Outcome))
	}
	return out
}

type memEventStore struct {
	mu     sync.Mutex
	events map[string]WebhookEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: map[string]WebhookEvent{}}
}

func (s *memEventStore) Save(_ context.Context, event WebhookEvent) (WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return event, nil
}

func (s *memEventStore) Get(_ context.Context, id string) (WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return WebhookEvent{}, fmt.Errorf("core: webhook event %s not found", id)
	}
	return event, nil
}

type memEndpointStore struct {
	mu        sync.Mutex
	endpoints map[string]WebhookEndpoint
	sequence  int
}

func newMemEndpointStore() *memEndpointStore {
	return &memEndpointStore{endpoints: map[string]WebhookEndpoint{}}
}

func (s *memEndpointStore) Register(_ context.Context, in RegisterEndpointInput) (WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	now := time.Now().UTC()
	endpoint := WebhookEndpoint{
		ID:              fmt.Sprintf("ep-%d", s.sequence),
		URL:             in.URL,
		EncryptedSecret: in.EncryptedSecret,
		EventTypes:      in.EventTypes,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.endpoints[endpoint.ID] = endpoint
	return endpoint, nil
}

func (s *memEndpointStore) Get(_ context.Context, id string) (WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return WebhookEndpoint{}, ErrEndpointNotFound
	}
	return endpoint, nil
}

func (s *memEndpointStore) ListActive(_ context.Context) ([]WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []WebhookEndpoint{}
	for _, endpoint := range s.endpoints {
		if endpoint.Active {
			out = append(out, endpoint)
		}
	}
	return out, nil
}

func (s *memEndpointStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return ErrEndpointNotFound
	}
	endpoint.Active = active
	endpoint.UpdatedAt = time.Now().UTC()
	s.endpoints[id] = endpoint
	return nil
}

type scriptedCollectionGateway struct {
	mu         sync.Mutex
	collectErr error
	reverseErr error
	collected  []CollectRequest
	reversed   []ReverseRequest
}

func (g *scriptedCollectionGateway) Collect(_ context.Context, req CollectRequest) (CollectResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.collectErr != nil {
		return CollectResult{}, g.collectErr
	}
	g.collected = append(g.collected, req)
	return CollectResult{Reference: fmt.Sprintf("col-%d", len(g.collected))}, nil
}

func (g *scriptedCollectionGateway) Reverse(_ context.Context, req ReverseRequest) (ReverseResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reverseErr != nil {
		return ReverseResult{}, g.reverseErr
	}
	g.reversed = append(g.reversed, req)
	return ReverseResult{ReversalReference: fmt.Sprintf("rev-%d", len(g.reversed))}, nil
}

func (g *scriptedCollectionGateway) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{State: HealthStateUp}
}

func (g *scriptedCollectionGateway) reversals() []ReverseRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ReverseRequest, len(g.reversed))
	copy(out, g.reversed)
	return out
}

type scriptedDisbursementGateway struct {
	mu          sync.Mutex
	transferErr error
	transfers   []TransferRequest
}

func (g *scriptedDisbursementGateway) Transfer(_ context.Context, req TransferRequest) (TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.transferErr != nil {
		return TransferResult{}, g.transferErr
	}
	g.transfers = append(g.transfers, req)
	return TransferResult{Reference: fmt.Sprintf("dis-%d", len(g.transfers))}, nil
}

func (g *scriptedDisbursementGateway) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{State: HealthStateUp}
}

type staticRateSource struct {
	rate float64
	err  error
}

func (s staticRateSource) Quote(_ context.Context, _, _ string, amountMinor int64) (ConversionQuote, error) {
	if s.err != nil {
		return ConversionQuote{}, s.err
	}
	return ConversionQuote{
		Rate:              s.rate,
		TargetAmountMinor: RoundHalfUp(float64(amountMinor) * s.rate),
	}, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []WebhookEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, string(event.Type))
	}
	return out
}

type serviceFixture struct {
	service      *Service
	payments     *memPaymentStore
	steps        *memStepLedger
	events       *memEventStore
	endpoints    *memEndpointStore
	collection   *scriptedCollectionGateway
	disbursement *scriptedDisbursementGateway
	publisher    *capturePublisher
	metrics      *captureMetricsRecorder
	logger       *captureLogger
}

func newServiceFixture(t *testing.T, options ...Option) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		payments:     newMemPaymentStore(),
		steps:        &memStepLedger{},
		events:       newMemEventStore(),
		endpoints:    newMemEndpointStore(),
		collection:   &scriptedCollectionGateway{},
		disbursement: &scriptedDisbursementGateway{},
		publisher:    &capturePublisher{},
		metrics:      &captureMetricsRecorder{},
		logger:       newCaptureLogger(),
	}
	base := []Option{
		WithPaymentStore(fixture.payments),
		WithStepLedger(fixture.steps),
		WithEventStore(fixture.events),
		WithEndpointStore(fixture.endpoints),
		WithCollectionGateway(fixture.collection),
		WithDisbursementGateway(fixture.disbursement),
		WithRateSource(staticRateSource{rate: 0.5}),
		WithEventPublisher(fixture.publisher),
		WithMetricsRecorder(fixture.metrics),
		WithLogger(fixture.logger),
	}
	svc, err := NewService(DefaultConfig(), append(base, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.service = svc
	return fixture
}

func (f *serviceFixture) seedPending(t *testing.T, id string) Payment {
	t.Helper()
	now := time.Now().UTC()
	payment := Payment{
		ID:                id,
		SourceAmountMinor: 10_000,
		SourceCurrency:    "USD",
		TargetCurrency:    "EUR",
		PayerRef:          "payer-1",
		PayeeRef:          "payee-1",
		Status:            PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.payments.seed(payment)
	return payment
}
