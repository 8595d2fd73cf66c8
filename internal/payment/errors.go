package payment

import (
	"errors"
	"fmt"
)

var (
	ErrNoApplication   = errors.New("application has not been saved yet")
	ErrAlreadyPaid     = errors.New("application fee already paid")
	ErrUnknownOrder    = errors.New("unknown order")
	ErrOrderReused     = errors.New("order id was already superseded")
	ErrOrderNotPending = errors.New("order is not pending")
	ErrInvalidAmount   = errors.New("amount must be a positive number of minor units")
)

// OrderError is a failed order creation. The applicant may try again.
type OrderError struct {
	Err error
}

func (e *OrderError) Error() string { return "create order: " + e.Err.Error() }

func (e *OrderError) Unwrap() error { return e.Err }

// VerificationError means the verification service could not be reached or
// gave an unusable answer. The order keeps its previous status.
type VerificationError struct {
	OrderID string
	Err     error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify order %s: %v", e.OrderID, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
