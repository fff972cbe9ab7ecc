package gateway

import "errors"

var (
	// ErrGatewayAuth is returned when the token endpoint fails. Retryable.
	ErrGatewayAuth = errors.New("gateway_auth_error")
	// ErrGatewayInvoice is returned when invoice create or payment check
	// fails or returns a body that cannot be used. Retryable.
	ErrGatewayInvoice = errors.New("gateway_invoice_error")

	errUnauthorized = errors.New("gateway_unauthorized")
)
