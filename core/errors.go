package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PaymentsErrorBadInput           = "PAYMENTS_BAD_INPUT"
	PaymentsErrorNotFound           = "PAYMENTS_NOT_FOUND"
	PaymentsErrorStateConflict      = "PAYMENTS_STATE_CONFLICT"
	PaymentsErrorProviderFailed     = "PAYMENTS_PROVIDER_FAILED"
	PaymentsErrorCompensationFailed = "PAYMENTS_COMPENSATION_FAILED"
	PaymentsErrorSignatureInvalid   = "PAYMENTS_SIGNATURE_INVALID"
	PaymentsErrorDeliveryFailed     = "PAYMENTS_DELIVERY_FAILED"
	PaymentsErrorInternal           = "PAYMENTS_INTERNAL_ERROR"
)

func paymentsErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePaymentsErrorEnvelope(richErr)
	}

	// Domain sentinels map by identity; message sniffing is only the
	// fallback for errors produced outside this package.
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCurrency):
		return newPaymentsError(err.Error(), goerrors.CategoryBadInput, PaymentsErrorBadInput)
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrEndpointNotFound):
		return newPaymentsError(err.Error(), goerrors.CategoryNotFound, PaymentsErrorNotFound)
	case errors.Is(err, ErrInvalidPaymentStatusTransition):
		return newPaymentsError(err.Error(), goerrors.CategoryConflict, PaymentsErrorStateConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newPaymentsError(err.Error(), goerrors.CategoryNotFound, PaymentsErrorNotFound)
	case strings.Contains(msg, "invalid payment status transition"),
		strings.Contains(msg, "state conflict"),
		strings.Contains(msg, "already processing"):
		return newPaymentsError(err.Error(), goerrors.CategoryConflict, PaymentsErrorStateConflict)
	case strings.Contains(msg, "signature"), strings.Contains(msg, "replay"):
		return newPaymentsError(err.Error(), goerrors.CategoryAuth, PaymentsErrorSignatureInvalid)
	case strings.Contains(msg, "gateway"), strings.Contains(msg, "provider"):
		return newPaymentsError(err.Error(), goerrors.CategoryExternal, PaymentsErrorProviderFailed)
	case strings.Contains(msg, "delivery"), strings.Contains(msg, "webhook"):
		return newPaymentsError(err.Error(), goerrors.CategoryExternal, PaymentsErrorDeliveryFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newPaymentsError(err.Error(), goerrors.CategoryBadInput, PaymentsErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePaymentsErrorEnvelope(mapped)
}

func newPaymentsError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePaymentsErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensurePaymentsErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = paymentsHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPaymentsTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPaymentsTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PaymentsErrorBadInput
	case goerrors.CategoryNotFound:
		return PaymentsErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return PaymentsErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return PaymentsErrorStateConflict
	case goerrors.CategoryExternal:
		return PaymentsErrorProviderFailed
	default:
		return PaymentsErrorInternal
	}
}

func paymentsHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StateConflictError builds the rejection returned when a concurrent caller
// loses the pending -> processing compare-and-set.
func StateConflictError(paymentID string, status PaymentStatus) *goerrors.Error {
	return newPaymentsError(
		"core: payment "+strings.TrimSpace(paymentID)+" is not pending (status "+string(status)+")",
		goerrors.CategoryConflict,
		PaymentsErrorStateConflict,
	)
}
