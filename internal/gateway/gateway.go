// Package gateway adapts payment providers to the admission flow: Midtrans
// for hosted checkout and status checks, and a console gateway for the CLI.
package gateway

import (
	"context"
	"errors"
)

// Status is what the provider says about an order, independent of what the
// browser side reported.
type Status string

const (
	StatusPaid      Status = "paid"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusNotFound means the provider has no transaction for the order,
	// typically because checkout was closed before a method was chosen.
	StatusNotFound Status = "not_found"
)

// Report is the provider's view of one order.
type Report struct {
	Status        Status
	TransactionID string
}

// Checker asks the provider for the status of an order.
type Checker interface {
	CheckStatus(ctx context.Context, orderID string) (Report, error)
}

// ErrBadSignature is returned for notifications that fail verification.
var ErrBadSignature = errors.New("gateway: invalid notification signature")

// MapStatus converts a Midtrans transaction_status and fraud_status pair.
func MapStatus(transactionStatus, fraudStatus string) Status {
	switch transactionStatus {
	case "capture":
		switch fraudStatus {
		case "accept", "":
			return StatusPaid
		case "challenge":
			return StatusPending
		}
		return StatusFailed
	case "settlement":
		return StatusPaid
	case "pending", "authorize":
		return StatusPending
	case "cancel":
		return StatusCancelled
	case "deny", "expire", "failure", "refund", "partial_refund":
		return StatusFailed
	}
	return StatusPending
}
