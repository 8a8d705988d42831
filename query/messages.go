package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetPayment      = "payments.query.payment.get"
	TypeListSteps       = "payments.query.payment.steps"
	TypeListDeliveries  = "payments.query.event.deliveries"
	TypeListDeadLetters = "payments.query.deadletter.list"
)

type GetPaymentMessage struct {
	PaymentID string
}

func (GetPaymentMessage) Type() string { return TypeGetPayment }

func (m GetPaymentMessage) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return fmt.Errorf("query: payment id is required")
	}
	return nil
}

type ListStepsMessage struct {
	PaymentID string
}

func (ListStepsMessage) Type() string { return TypeListSteps }

func (m ListStepsMessage) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return fmt.Errorf("query: payment id is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	EventID string
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Limit int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}
