package payments

import (
	"fmt"

	"github.com/goliatone/go-payments/adapters/gocommand"
	paymentscommand "github.com/goliatone/go-payments/command"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type CommandQueryService interface {
	paymentscommand.MutatingService
	paymentsquery.PaymentReader
}

type Commands struct {
	CreatePayment    *paymentscommand.CreatePaymentCommand
	ProcessPayment   *paymentscommand.ProcessPaymentCommand
	CancelPayment    *paymentscommand.CancelPaymentCommand
	RegisterEndpoint *paymentscommand.RegisterEndpointCommand
	DisableEndpoint  *paymentscommand.DisableEndpointCommand
}

type Queries struct {
	GetPayment      *paymentsquery.GetPaymentQuery
	ListSteps       *paymentsquery.ListStepsQuery
	ListDeliveries  *paymentsquery.ListDeliveriesQuery
	ListDeadLetters *paymentsquery.ListDeadLettersQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	stepReader       paymentsquery.StepReader
	deliveryReader   paymentsquery.DeliveryReader
	deadLetterReader paymentsquery.DeadLetterReader
}

func WithStepReader(reader paymentsquery.StepReader) FacadeOption {
	return func(options *facadeOptions) {
		options.stepReader = reader
	}
}

func WithDeliveryReader(reader paymentsquery.DeliveryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryReader = reader
	}
}

func WithDeadLetterReader(reader paymentsquery.DeadLetterReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deadLetterReader = reader
	}
}

// NewFacade wires the command and query handlers around a payment service.
// The ledger-backed queries use the stores directly; pass the corresponding
// readers when those queries are needed.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	if cfg.stepReader == nil {
		if reader, ok := service.(paymentsquery.StepReader); ok {
			cfg.stepReader = reader
		}
	}
	if cfg.deliveryReader == nil {
		if reader, ok := service.(paymentsquery.DeliveryReader); ok {
			cfg.deliveryReader = reader
		}
	}
	if cfg.deadLetterReader == nil {
		if reader, ok := service.(paymentsquery.DeadLetterReader); ok {
			cfg.deadLetterReader = reader
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreatePayment:    paymentscommand.NewCreatePaymentCommand(service),
		ProcessPayment:   paymentscommand.NewProcessPaymentCommand(service),
		CancelPayment:    paymentscommand.NewCancelPaymentCommand(service),
		RegisterEndpoint: paymentscommand.NewRegisterEndpointCommand(service),
		DisableEndpoint:  paymentscommand.NewDisableEndpointCommand(service),
	}
	facade.queries = Queries{
		GetPayment:      paymentsquery.NewGetPaymentQuery(service),
		ListSteps:       paymentsquery.NewListStepsQuery(cfg.stepReader),
		ListDeliveries:  paymentsquery.NewListDeliveriesQuery(cfg.deliveryReader),
		ListDeadLetters: paymentsquery.NewListDeadLettersQuery(cfg.deadLetterReader),
	}

	return facade, nil
}

// SubscribeHandlers registers every command and query handler on the
// go-command dispatcher through the registry adapter. Callers hold the
// returned subscriptions for teardown. A partial failure unsubscribes
// whatever was already registered.
func (f *Facade) SubscribeHandlers(registry *gocommand.RegistryAdapter) ([]gocommand.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("payments: facade is required")
	}
	if registry == nil {
		registry = gocommand.NewRegistryAdapter(nil)
	}

	subscriptions := []gocommand.Subscription{}
	unsubscribeAll := func() {
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
	}

	registrations := []func() (gocommand.Subscription, error){
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribe(registry, f.commands.CreatePayment)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribe(registry, f.commands.ProcessPayment)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribe(registry, f.commands.CancelPayment)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribe(registry, f.commands.RegisterEndpoint)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribe(registry, f.commands.DisableEndpoint)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(registry, f.queries.GetPayment)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(registry, f.queries.ListSteps)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(registry, f.queries.ListDeliveries)
		},
		func() (gocommand.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(registry, f.queries.ListDeadLetters)
		},
	}
	for _, register := range registrations {
		subscription, err := register()
		if err != nil {
			unsubscribeAll()
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}

	return subscriptions, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
