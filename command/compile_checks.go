package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreatePaymentMessage]    = (*CreatePaymentCommand)(nil)
	_ gocmd.Commander[ProcessPaymentMessage]   = (*ProcessPaymentCommand)(nil)
	_ gocmd.Commander[CancelPaymentMessage]    = (*CancelPaymentCommand)(nil)
	_ gocmd.Commander[RegisterEndpointMessage] = (*RegisterEndpointCommand)(nil)
	_ gocmd.Commander[DisableEndpointMessage]  = (*DisableEndpointCommand)(nil)
)
