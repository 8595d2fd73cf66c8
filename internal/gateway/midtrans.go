package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type coreAPI interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Midtrans issues snap checkout sessions and checks transaction status
// through the core API.
type Midtrans struct {
	snap      snapAPI
	core      coreAPI
	serverKey string
}

// NewMidtrans builds a client for the sandbox or production environment.
func NewMidtrans(serverKey string, production bool) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	var s snap.Client
	s.New(serverKey, env)
	var c coreapi.Client
	c.New(serverKey, env)
	return &Midtrans{snap: &s, core: &c, serverKey: serverKey}
}

// Checkout opens a snap session for order and returns its token and the
// hosted page URL. Amounts are sent in major units.
func (m *Midtrans) Checkout(ctx context.Context, order model.PaymentOrder, prefill payment.Prefill) (token, redirectURL string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if order.OrderID == "" || order.Amount <= 0 {
		return "", "", fmt.Errorf("checkout: invalid order %q amount %d", order.OrderID, order.Amount)
	}
	gross := order.Amount / 100
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.OrderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: prefill.Name,
			Email: prefill.Email,
			Phone: prefill.Contact,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       order.ApplicationID,
			Price:    gross,
			Qty:      1,
			Name:     "Application fee",
			Category: "admission",
		}},
	}
	resp, merr := m.snap.CreateTransaction(req)
	if merr != nil {
		return "", "", fmt.Errorf("create snap transaction: %w", merr)
	}
	return resp.Token, resp.RedirectURL, nil
}

// CheckStatus asks the core API about orderID. An unknown transaction is
// StatusNotFound, not an error.
func (m *Midtrans) CheckStatus(ctx context.Context, orderID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	resp, merr := m.core.CheckTransaction(orderID)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return Report{Status: StatusNotFound}, nil
		}
		return Report{}, fmt.Errorf("check transaction %s: %w", orderID, merr)
	}
	// The core API reports some failures in the body with a 2xx transport.
	if resp.StatusCode == "404" {
		return Report{Status: StatusNotFound}, nil
	}
	return Report{
		Status:        MapStatus(strings.ToLower(resp.TransactionStatus), strings.ToLower(resp.FraudStatus)),
		TransactionID: resp.TransactionID,
	}, nil
}

// Notification is the HTTP notification body Midtrans posts for every
// status change.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// Status maps the notification to a Status.
func (n Notification) Status() Status {
	return MapStatus(strings.ToLower(n.TransactionStatus), strings.ToLower(n.FraudStatus))
}

// VerifyNotification checks SHA512(order_id+status_code+gross_amount+server_key).
func (m *Midtrans) VerifyNotification(n Notification) error {
	return verifyNotification(m.serverKey, n)
}

func verifyNotification(serverKey string, n Notification) error {
	want := strings.ToLower(n.SignatureKey)
	if want == "" || serverKey == "" {
		return ErrBadSignature
	}
	if notificationSignature(serverKey, n) != want {
		return ErrBadSignature
	}
	return nil
}

func notificationSignature(serverKey string, n Notification) string {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
