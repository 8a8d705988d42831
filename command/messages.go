package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeCreatePayment    = "payments.command.payment.create"
	TypeProcessPayment   = "payments.command.payment.process"
	TypeCancelPayment    = "payments.command.payment.cancel"
	TypeRegisterEndpoint = "payments.command.endpoint.register"
	TypeDisableEndpoint  = "payments.command.endpoint.disable"
)

type CreatePaymentMessage struct {
	Input core.CreatePaymentInput
}

func (CreatePaymentMessage) Type() string { return TypeCreatePayment }

func (m CreatePaymentMessage) Validate() error {
	if m.Input.SourceAmountMinor <= 0 {
		return fmt.Errorf("command: source amount must be positive")
	}
	if strings.TrimSpace(m.Input.SourceCurrency) == "" {
		return fmt.Errorf("command: source currency is required")
	}
	if strings.TrimSpace(m.Input.TargetCurrency) == "" {
		return fmt.Errorf("command: target currency is required")
	}
	if strings.TrimSpace(m.Input.PayerRef) == "" {
		return fmt.Errorf("command: payer ref is required")
	}
	if strings.TrimSpace(m.Input.PayeeRef) == "" {
		return fmt.Errorf("command: payee ref is required")
	}
	return nil
}

type ProcessPaymentMessage struct {
	PaymentID string
}

func (ProcessPaymentMessage) Type() string { return TypeProcessPayment }

func (m ProcessPaymentMessage) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return fmt.Errorf("command: payment id is required")
	}
	return nil
}

type CancelPaymentMessage struct {
	PaymentID string
	Reason    string
}

func (CancelPaymentMessage) Type() string { return TypeCancelPayment }

func (m CancelPaymentMessage) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return fmt.Errorf("command: payment id is required")
	}
	return nil
}

type RegisterEndpointMessage struct {
	URL        string
	Secret     string
	EventTypes []string
}

func (RegisterEndpointMessage) Type() string { return TypeRegisterEndpoint }

func (m RegisterEndpointMessage) Validate() error {
	if strings.TrimSpace(m.URL) == "" {
		return fmt.Errorf("command: endpoint url is required")
	}
	if strings.TrimSpace(m.Secret) == "" {
		return fmt.Errorf("command: endpoint secret is required")
	}
	return nil
}

type DisableEndpointMessage struct {
	EndpointID string
	Reason     string
}

func (DisableEndpointMessage) Type() string { return TypeDisableEndpoint }

func (m DisableEndpointMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("command: endpoint id is required")
	}
	return nil
}
