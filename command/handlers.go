package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-payments/core"
)

type MutatingService interface {
	CreatePayment(ctx context.Context, in core.CreatePaymentInput) (core.Payment, error)
	ProcessPayment(ctx context.Context, paymentID string) (core.ProcessResult, error)
	CancelPayment(ctx context.Context, paymentID string, reason string) (core.Payment, error)
	RegisterEndpoint(ctx context.Context, url string, secret string, eventTypes []string) (core.WebhookEndpoint, error)
	DisableEndpoint(ctx context.Context, endpointID string, reason string) error
}

type CreatePaymentCommand struct {
	service MutatingService
}

func NewCreatePaymentCommand(service MutatingService) *CreatePaymentCommand {
	return &CreatePaymentCommand{service: service}
}

func (c *CreatePaymentCommand) Execute(ctx context.Context, msg CreatePaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	out, err := c.service.CreatePayment(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessPaymentCommand struct {
	service MutatingService
}

func NewProcessPaymentCommand(service MutatingService) *ProcessPaymentCommand {
	return &ProcessPaymentCommand{service: service}
}

func (c *ProcessPaymentCommand) Execute(ctx context.Context, msg ProcessPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	out, err := c.service.ProcessPayment(ctx, msg.PaymentID)
	if err != nil {
		storeResult(ctx, out)
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelPaymentCommand struct {
	service MutatingService
}

func NewCancelPaymentCommand(service MutatingService) *CancelPaymentCommand {
	return &CancelPaymentCommand{service: service}
}

func (c *CancelPaymentCommand) Execute(ctx context.Context, msg CancelPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	out, err := c.service.CancelPayment(ctx, msg.PaymentID, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterEndpointCommand struct {
	service MutatingService
}

func NewRegisterEndpointCommand(service MutatingService) *RegisterEndpointCommand {
	return &RegisterEndpointCommand{service: service}
}

func (c *RegisterEndpointCommand) Execute(ctx context.Context, msg RegisterEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	out, err := c.service.RegisterEndpoint(ctx, msg.URL, msg.Secret, msg.EventTypes)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisableEndpointCommand struct {
	service MutatingService
}

func NewDisableEndpointCommand(service MutatingService) *DisableEndpointCommand {
	return &DisableEndpointCommand{service: service}
}

func (c *DisableEndpointCommand) Execute(ctx context.Context, msg DisableEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	return c.service.DisableEndpoint(ctx, msg.EndpointID, msg.Reason)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
