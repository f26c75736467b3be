package checkout

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError covers malformed or out-of-policy input (400).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError covers unknown events, vouchers and bookings (404).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError covers insufficient inventory, insufficient or expired
// vouchers, and races lost to a concurrent request (409).
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// GatewayError covers an unreachable payment gateway or a rejected session
// (502).
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// SignatureError covers a webhook payload that failed verification (400, no
// side effects).
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// HTTPStatus maps the settlement error taxonomy onto response codes. Unknown
// errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		gateway    *GatewayError
		signature  *SignatureError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	case errors.As(err, &signature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
