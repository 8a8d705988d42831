// Package sandbox provides deterministic in-memory payment gateways for
// development and tests. Outcomes are driven by magic account references:
// any payer or payee reference containing "declined" or "unreachable" fails
// the corresponding stage, everything else succeeds.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-payments/core"
)

const (
	// MarkerDeclined fails collection for payer references containing it.
	MarkerDeclined = "declined"
	// MarkerUnreachable fails disbursement for payee references containing it.
	MarkerUnreachable = "unreachable"
)

type CollectionGateway struct {
	mu        sync.Mutex
	sequence  int
	collected map[string]core.CollectRequest
	reversed  map[string]string
}

func NewCollectionGateway() *CollectionGateway {
	return &CollectionGateway{
		collected: map[string]core.CollectRequest{},
		reversed:  map[string]string{},
	}
}

func (g *CollectionGateway) Collect(_ context.Context, req core.CollectRequest) (core.CollectResult, error) {
	if req.AmountMinor <= 0 {
		return core.CollectResult{}, fmt.Errorf("sandbox: collection amount must be positive")
	}
	if strings.Contains(strings.ToLower(req.PayerRef), MarkerDeclined) {
		return core.CollectResult{}, fmt.Errorf("sandbox: payer %s declined the collection", req.PayerRef)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequence++
	reference := fmt.Sprintf("snd-col-%06d", g.sequence)
	g.collected[reference] = req
	return core.CollectResult{
		Reference: reference,
		Metadata:  map[string]any{"payment_id": req.PaymentID},
	}, nil
}

// Reverse refunds a prior collection. Reversing an unknown or already
// reversed reference fails; a reversal is a one-shot operation.
func (g *CollectionGateway) Reverse(_ context.Context, req core.ReverseRequest) (core.ReverseResult, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return core.ReverseResult{}, fmt.Errorf("sandbox: collection reference is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	original, ok := g.collected[reference]
	if !ok {
		return core.ReverseResult{}, fmt.Errorf("sandbox: unknown collection reference %s", reference)
	}
	if _, done := g.reversed[reference]; done {
		return core.ReverseResult{}, fmt.Errorf("sandbox: collection %s already reversed", reference)
	}
	if req.AmountMinor != original.AmountMinor {
		return core.ReverseResult{}, fmt.Errorf("sandbox: reversal amount %d does not match collected %d", req.AmountMinor, original.AmountMinor)
	}

	reversalRef := "snd-rev-" + strings.TrimPrefix(reference, "snd-col-")
	g.reversed[reference] = reversalRef
	return core.ReverseResult{ReversalReference: reversalRef}, nil
}

func (g *CollectionGateway) HealthCheck(context.Context) core.HealthStatus {
	return core.HealthStatus{State: core.HealthStateUp, Detail: "sandbox collection"}
}

// Reversals exposes the reversal map for assertions in tests.
func (g *CollectionGateway) Reversals() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]string, len(g.reversed))
	for reference, reversalRef := range g.reversed {
		out[reference] = reversalRef
	}
	return out
}

type DisbursementGateway struct {
	mu         sync.Mutex
	sequence   int
	settlement time.Duration
}

func NewDisbursementGateway() *DisbursementGateway {
	return &DisbursementGateway{settlement: 24 * time.Hour}
}

func (g *DisbursementGateway) Transfer(_ context.Context, req core.TransferRequest) (core.TransferResult, error) {
	if req.AmountMinor <= 0 {
		return core.TransferResult{}, fmt.Errorf("sandbox: transfer amount must be positive")
	}
	if strings.Contains(strings.ToLower(req.PayeeRef), MarkerUnreachable) {
		return core.TransferResult{}, fmt.Errorf("sandbox: payee %s is unreachable", req.PayeeRef)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequence++
	settlement := time.Now().UTC().Add(g.settlement)
	return core.TransferResult{
		Reference:           fmt.Sprintf("snd-dis-%06d", g.sequence),
		EstimatedSettlement: &settlement,
		Metadata:            map[string]any{"payment_id": req.PaymentID},
	}, nil
}

func (g *DisbursementGateway) HealthCheck(context.Context) core.HealthStatus {
	return core.HealthStatus{State: core.HealthStateUp, Detail: "sandbox disbursement"}
}

var (
	_ core.CollectionGateway   = (*CollectionGateway)(nil)
	_ core.DisbursementGateway = (*DisbursementGateway)(nil)
)
