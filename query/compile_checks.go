package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Querier[GetPaymentMessage, core.Payment]               = (*GetPaymentQuery)(nil)
	_ gocmd.Querier[ListStepsMessage, []core.ProcessingStep]       = (*ListStepsQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, []core.DeliveryAttempt] = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.DeadLetter]     = (*ListDeadLettersQuery)(nil)
)
