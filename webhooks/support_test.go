package webhooks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
)

type stubEndpointStore struct {
	mu        sync.Mutex
	endpoints map[string]core.WebhookEndpoint
	listErr   error
}

func newStubEndpointStore(endpoints ...core.WebhookEndpoint) *stubEndpointStore {
	store := &stubEndpointStore{endpoints: map[string]core.WebhookEndpoint{}}
	for _, endpoint := range endpoints {
		store.endpoints[endpoint.ID] = endpoint
	}
	return store
}

func (s *stubEndpointStore) Register(_ context.Context, in core.RegisterEndpointInput) (core.WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint := core.WebhookEndpoint{
		ID:              fmt.Sprintf("ep-%d", len(s.endpoints)+1),
		URL:             in.URL,
		EncryptedSecret: in.EncryptedSecret,
		EventTypes:      in.EventTypes,
		Active:          true,
	}
	s.endpoints[endpoint.ID] = endpoint
	return endpoint, nil
}

func (s *stubEndpointStore) Get(_ context.Context, id string) (core.WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return core.WebhookEndpoint{}, core.ErrEndpointNotFound
	}
	return endpoint, nil
}

func (s *stubEndpointStore) ListActive(context.Context) ([]core.WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []core.WebhookEndpoint{}
	for _, endpoint := range s.endpoints {
		if endpoint.Active {
			out = append(out, endpoint)
		}
	}
	return out, nil
}

func (s *stubEndpointStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return core.ErrEndpointNotFound
	}
	endpoint.Active = active
	s.endpoints[id] = endpoint
	return nil
}

type stubEventStore struct {
	mu     sync.Mutex
	events map[string]core.WebhookEvent
}

func newStubEventStore(events ...core.WebhookEvent) *stubEventStore {
	store := &stubEventStore{events: map[string]core.WebhookEvent{}}
	for _, event := range events {
		store.events[event.ID] = event
	}
	return store
}

func (s *stubEventStore) Save(_ context.Context, event core.WebhookEvent) (core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return event, nil
}

func (s *stubEventStore) Get(_ context.Context, id string) (core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return core.WebhookEvent{}, fmt.Errorf("webhooks: event %s not found", id)
	}
	return event, nil
}

type memDeliveryLedger struct {
	mu       sync.Mutex
	attempts []core.DeliveryAttempt
}

func (l *memDeliveryLedger) Record(_ context.Context, attempt core.DeliveryAttempt) (core.DeliveryAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return attempt, nil
}

func (l *memDeliveryLedger) LatestAttempt(_ context.Context, endpointID, eventID string) (core.DeliveryAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest *core.DeliveryAttempt
	for index := range l.attempts {
		attempt := l.attempts[index]
		if attempt.EndpointID != endpointID || attempt.EventID != eventID {
			continue
		}
		if latest == nil || attempt.Attempt > latest.Attempt {
			latest = &l.attempts[index]
		}
	}
	if latest == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("webhooks: attempt not found")
	}
	return *latest, nil
}

func (l *memDeliveryLedger) ListByEvent(_ context.Context, eventID string) ([]core.DeliveryAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.DeliveryAttempt{}
	for _, attempt := range l.attempts {
		if attempt.EventID == eventID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func (l *memDeliveryLedger) ClaimDue(_ context.Context, now time.Time, limit int) ([]core.DeliveryAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.DeliveryAttempt{}
	for index := range l.attempts {
		if len(out) >= limit {
			break
		}
		attempt := l.attempts[index]
		if attempt.Status != core.DeliveryStatusRetryReady {
			continue
		}
		if attempt.NextAttemptAt == nil || attempt.NextAttemptAt.After(now) {
			continue
		}
		l.attempts[index].Status = core.DeliveryStatusPending
		out = append(out, l.attempts[index])
	}
	return out, nil
}

func (l *memDeliveryLedger) ReclaimStale(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reclaimed := 0
	for index := range l.attempts {
		attempt := l.attempts[index]
		if attempt.Status != core.DeliveryStatusPending {
			continue
		}
		if attempt.UpdatedAt.After(before) {
			continue
		}
		if attempt.NextAttemptAt == nil {
			continue
		}
		l.attempts[index].Status = core.DeliveryStatusRetryReady
		reclaimed++
	}
	return reclaimed, nil
}

func (l *memDeliveryLedger) byEndpoint(endpointID string) []core.DeliveryAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.DeliveryAttempt{}
	for _, attempt := range l.attempts {
		if attempt.EndpointID == endpointID {
			out = append(out, attempt)
		}
	}
	return out
}

type memDeadLetterStore struct {
	mu      sync.Mutex
	letters []core.DeadLetter
}

func (s *memDeadLetterStore) Record(_ context.Context, letter core.DeadLetter) (core.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, letter)
	return letter, nil
}

func (s *memDeadLetterStore) ListUnresolved(_ context.Context, limit int) ([]core.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.DeadLetter{}
	for _, letter := range s.letters {
		if letter.ResolvedAt == nil {
			out = append(out, letter)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memDeadLetterStore) Resolve(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for index := range s.letters {
		if s.letters[index].ID == id {
			s.letters[index].ResolvedAt = &now
			return nil
		}
	}
	return fmt.Errorf("webhooks: dead letter %s not found", id)
}

func (s *memDeadLetterStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters)
}

type sentRequest struct {
	req core.TransportRequest
}

type scriptedTransport struct {
	mu        sync.Mutex
	statuses  []int
	err       error
	errForURL string
	requests  []sentRequest
}

func (t *scriptedTransport) Kind() string { return "rest" }

func (t *scriptedTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, sentRequest{req: req})
	if t.err != nil && (t.errForURL == "" || t.errForURL == req.URL) {
		return core.TransportResponse{}, t.err
	}
	status := 200
	if len(t.statuses) > 0 {
		status = t.statuses[0]
		if len(t.statuses) > 1 {
			t.statuses = t.statuses[1:]
		}
	}
	return core.TransportResponse{StatusCode: status}, nil
}

func (t *scriptedTransport) sent() []sentRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentRequest, len(t.requests))
	copy(out, t.requests)
	return out
}

type dispatcherFixture struct {
	dispatcher  *Dispatcher
	endpoints   *stubEndpointStore
	events      *stubEventStore
	deliveries  *memDeliveryLedger
	deadLetters *memDeadLetterStore
	transport   *scriptedTransport
	clock       time.Time
}

func testEndpoint(id string, eventTypes ...string) core.WebhookEndpoint {
	return core.WebhookEndpoint{
		ID:              id,
		URL:             "https://hooks.example.com/" + id,
		EncryptedSecret: []byte("whsec_" + id),
		EventTypes:      eventTypes,
		Active:          true,
	}
}

func testEvent(id string) core.WebhookEvent {
	return core.WebhookEvent{
		ID:         id,
		Type:       core.EventPaymentCompleted,
		OccurredAt: time.Unix(1_700_000_000, 0).UTC(),
		Source:     "go-payments",
		Data:       map[string]any{"payment_id": "pay-1"},
	}
}

func newDispatcherFixture(t *testing.T, endpoints ...core.WebhookEndpoint) *dispatcherFixture {
	t.Helper()
	fixture := &dispatcherFixture{
		endpoints:   newStubEndpointStore(endpoints...),
		events:      newStubEventStore(),
		deliveries:  &memDeliveryLedger{},
		deadLetters: &memDeadLetterStore{},
		transport:   &scriptedTransport{},
		clock:       time.Unix(1_700_000_000, 0).UTC(),
	}
	dispatcher, err := NewDispatcher(DispatcherOptions{
		Endpoints:   fixture.endpoints,
		Events:      fixture.events,
		Deliveries:  fixture.deliveries,
		DeadLetters: fixture.deadLetters,
		Transport:   fixture.transport,
		Config:      core.DefaultConfig().Webhooks,
		Now:         func() time.Time { return fixture.clock },
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	fixture.dispatcher = dispatcher
	return fixture
}
