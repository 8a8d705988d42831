package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestProcessPayment_HappyPath(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedPending(t, "pay-1")

	result, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if result.Status != PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	payment, err := fixture.payments.Get(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != PaymentStatusCompleted {
		t.Fatalf("expected stored status completed, got %s", payment.Status)
	}
	if payment.TargetAmountMinor != 5_000 {
		t.Fatalf("expected target amount 5000, got %d", payment.TargetAmountMinor)
	}
	if payment.ExchangeRate != 0.5 {
		t.Fatalf("expected rate 0.5, got %f", payment.ExchangeRate)
	}
	if payment.CollectionRef == "" || payment.DisbursementRef == "" {
		t.Fatalf("expected provider references, got %q / %q", payment.CollectionRef, payment.DisbursementRef)
	}

	expected := []string{
		"status_transition:completed",
		"collection:completed",
		"conversion:completed",
		"disbursement:completed",
		"completion:completed",
	}
	names := fixture.steps.names("pay-1")
	if len(names) != len(expected) {
		t.Fatalf("expected %d steps, got %v", len(expected), names)
	}
	for index, want := range expected {
		if names[index] != want {
			t.Fatalf("step %d: expected %s, got %s", index, want, names[index])
		}
	}

	eventTypes := fixture.publisher.types()
	if len(eventTypes) != 2 || eventTypes[0] != "payment.processing" || eventTypes[1] != "payment.completed" {
		t.Fatalf("unexpected events: %v", eventTypes)
	}
	if len(fixture.collection.reversals()) != 0 {
		t.Fatalf("expected no reversals on success")
	}
}

func TestProcessPayment_SameCurrencySkipsRateSource(t *testing.T) {
	fixture := newServiceFixture(t, WithRateSource(staticRateSource{err: errors.New("rate source must not be called")}))
	payment := fixture.seedPending(t, "pay-1")
	payment.TargetCurrency = payment.SourceCurrency
	fixture.payments.seed(payment)

	result, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if result.Status != PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	stored, _ := fixture.payments.Get(context.Background(), "pay-1")
	if stored.TargetAmountMinor != stored.SourceAmountMinor {
		t.Fatalf("expected identity conversion, got %d", stored.TargetAmountMinor)
	}
	if stored.ExchangeRate != 1.0 {
		t.Fatalf("expected rate 1.0, got %f", stored.ExchangeRate)
	}
}

func TestProcessPayment_NotPendingRejectsWithoutSideEffects(t *testing.T) {
	fixture := newServiceFixture(t)
	payment := fixture.seedPending(t, "pay-1")
	payment.Status = PaymentStatusCompleted
	fixture.payments.seed(payment)

	_, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err == nil {
		t.Fatalf("expected state conflict error")
	}
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.TextCode != PaymentsErrorStateConflict {
		t.Fatalf("expected %s, got %s", PaymentsErrorStateConflict, rich.TextCode)
	}

	if len(fixture.collection.collected) != 0 {
		t.Fatalf("expected zero provider calls")
	}
	if len(fixture.steps.names("pay-1")) != 0 {
		t.Fatalf("expected zero steps, got %v", fixture.steps.names("pay-1"))
	}
	if len(fixture.publisher.types()) != 0 {
		t.Fatalf("expected zero events, got %v", fixture.publisher.types())
	}
}

func TestProcessPayment_CollectionFailureSkipsCompensation(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.collection.collectErr = errors.New("gateway declined")
	fixture.seedPending(t, "pay-1")

	result, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if result.Status != PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}

	// Nothing was collected, so nothing may be reversed.
	if len(fixture.collection.reversals()) != 0 {
		t.Fatalf("expected no reversal, got %v", fixture.collection.reversals())
	}

	stored, _ := fixture.payments.Get(context.Background(), "pay-1")
	if stored.Status != PaymentStatusFailed {
		t.Fatalf("expected stored status failed, got %s", stored.Status)
	}
	if stored.LastError == "" {
		t.Fatalf("expected last error recorded")
	}

	eventTypes := fixture.publisher.types()
	if len(eventTypes) != 2 || eventTypes[1] != "payment.failed" {
		t.Fatalf("unexpected events: %v", eventTypes)
	}
}

func TestProcessPayment_DisbursementFailureReversesCollectionOnce(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.disbursement.transferErr = errors.New("payee account closed")
	fixture.seedPending(t, "pay-1")

	result, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if result.Status != PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}

	reversals := fixture.collection.reversals()
	if len(reversals) != 1 {
		t.Fatalf("expected exactly one reversal, got %d", len(reversals))
	}
	if reversals[0].Reference != "col-1" {
		t.Fatalf("expected reversal of col-1, got %s", reversals[0].Reference)
	}
	if reversals[0].AmountMinor != 10_000 || reversals[0].Currency != "USD" {
		t.Fatalf("reversal must match collected amount: %+v", reversals[0])
	}

	names := fixture.steps.names("pay-1")
	expected := []string{
		"status_transition:completed",
		"collection:completed",
		"conversion:completed",
		"disbursement:failed",
		"compensation:completed",
	}
	if len(names) != len(expected) {
		t.Fatalf("expected %d steps, got %v", len(expected), names)
	}
	for index, want := range expected {
		if names[index] != want {
			t.Fatalf("step %d: expected %s, got %s", index, want, names[index])
		}
	}
}

func TestProcessPayment_ConversionFailureReversesCollection(t *testing.T) {
	fixture := newServiceFixture(t, WithRateSource(staticRateSource{err: errors.New("rate feed stale")}))
	fixture.seedPending(t, "pay-1")

	_, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(fixture.collection.reversals()) != 1 {
		t.Fatalf("expected one reversal, got %d", len(fixture.collection.reversals()))
	}
	stored, _ := fixture.payments.Get(context.Background(), "pay-1")
	if stored.Status != PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func TestProcessPayment_CompensationFailureStillFailsPayment(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.disbursement.transferErr = errors.New("payee unreachable")
	fixture.collection.reverseErr = errors.New("reversal window closed")
	fixture.seedPending(t, "pay-1")

	result, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
	if err == nil {
		t.Fatalf("expected the disbursement error to surface")
	}
	if result.Status != PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Err == "" {
		t.Fatalf("expected result error populated")
	}

	names := fixture.steps.names("pay-1")
	found := false
	for _, name := range names {
		if name == "compensation:failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected compensation:failed step, got %v", names)
	}

	// The stage error wins; compensation failure is logged, not returned.
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.TextCode != PaymentsErrorProviderFailed {
		t.Fatalf("expected %s, got %s", PaymentsErrorProviderFailed, rich.TextCode)
	}
}

func TestProcessPayment_ConcurrentClaimsSingleWinner(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedPending(t, "pay-1")

	const callers = 8
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := fixture.service.ProcessPayment(context.Background(), "pay-1")
			results <- err
		}()
	}

	succeeded := 0
	for i := 0; i < callers; i++ {
		if err := <-results; err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d", succeeded)
	}
	if len(fixture.collection.collected) != 1 {
		t.Fatalf("expected one collection, got %d", len(fixture.collection.collected))
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		value float64
		want  int64
	}{
		{10.4, 10},
		{10.5, 11},
		{10.6, 11},
		{-10.5, -11},
		{0, 0},
		{267.5, 268},
	}
	for _, tc := range cases {
		if got := RoundHalfUp(tc.value); got != tc.want {
			t.Fatalf("RoundHalfUp(%f): expected %d, got %d", tc.value, tc.want, got)
		}
	}
}
