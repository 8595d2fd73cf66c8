package model

import "time"

// OrderStatus is the lifecycle of one payment attempt.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderSuccess   OrderStatus = "success"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed for the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderSuccess || s == OrderFailed || s == OrderCancelled
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return s == OrderCreated || s.Terminal()
}

// PaymentOrder is a server-issued handle for one attempt to pay the fee.
// Amount is in minor currency units (paise for INR).
type PaymentOrder struct {
	OrderID       string      `json:"order_id"`
	ApplicationID string      `json:"application_id"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	Status        OrderStatus `json:"status"`
	TransactionID string      `json:"transaction_id,omitempty"`
	// CheckoutURL is where the gateway's hosted page can be opened.
	CheckoutURL string    `json:"checkout_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Outcome is what the gateway reported to the browser side.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeDismissed Outcome = "dismissed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeDismissed
}

// Identifiers are the gateway-issued references that accompany an outcome.
type Identifiers struct {
	PaymentID string `json:"payment_id,omitempty"`
	Signature string `json:"signature,omitempty"`
}
