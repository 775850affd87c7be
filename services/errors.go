package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// AuthenticationError means the webhook signature was missing or invalid.
// Redelivery cannot fix it.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("webhook authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// MalformedEventError means the event verified but lacks what is needed to
// record a purchase.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed checkout event: %s %s", e.Field, e.Reason)
}

// PersistenceError means the primary record could not be written. Nothing was
// committed and the provider should redeliver.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AllocationError reports a failed revenue split. It never fails the webhook.
type AllocationError struct {
	SaleID uuid.UUID
	Err    error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("revenue allocation for sale %s failed: %v", e.SaleID, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// StatusCode maps a reconciliation error to the HTTP status returned to the
// payment provider. 4xx stops redelivery, 5xx asks for it.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var authErr *AuthenticationError
	var malformedErr *MalformedEventError
	switch {
	case errors.As(err, &authErr), errors.As(err, &malformedErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ServiceError represents a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}
