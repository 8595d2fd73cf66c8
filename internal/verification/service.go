// Package verification decides the authoritative status of payment orders.
// Every decision is taken with the order row locked, so repeated reports for
// one order_id resolve to the same answer.
package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/signing"
)

// ErrOrderMismatch is returned when the order belongs to another application.
var ErrOrderMismatch = errors.New("order does not belong to application")

// Store locks one order, applies decide and persists the result.
type Store interface {
	Resolve(ctx context.Context, orderID string, decide func(model.PaymentOrder) (model.PaymentOrder, error)) (model.PaymentOrder, error)
}

// Service implements payment.Verifier on the server.
type Service struct {
	store   Store
	signer  *signing.Signer
	checker gateway.Checker
	log     logrus.FieldLogger
}

// New constructs a Service. checker may be nil, in which case only signed
// success reports are accepted.
func New(store Store, signer *signing.Signer, checker gateway.Checker, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, signer: signer, checker: checker, log: logger}
}

// Verify decides the status of req.OrderID from the reported outcome.
func (s *Service) Verify(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResult, error) {
	if !req.Outcome.Valid() {
		return payment.VerifyResult{}, fmt.Errorf("unknown outcome %q", req.Outcome)
	}
	logger := s.log.WithFields(logrus.Fields{"order_id": req.OrderID, "application_id": req.ApplicationID, "outcome": req.Outcome})
	order, err := s.store.Resolve(ctx, req.OrderID, func(o model.PaymentOrder) (model.PaymentOrder, error) {
		if o.ApplicationID != req.ApplicationID {
			return o, ErrOrderMismatch
		}
		if o.Status.Terminal() {
			return o, nil
		}
		return s.decide(ctx, o, req)
	})
	if err != nil {
		logger.WithError(err).Warn("verification failed")
		return payment.VerifyResult{}, err
	}
	logger.WithField("status", order.Status).Info("order verified")
	return payment.VerifyResult{Status: order.Status, TransactionID: order.TransactionID}, nil
}

func (s *Service) decide(ctx context.Context, o model.PaymentOrder, req payment.VerifyRequest) (model.PaymentOrder, error) {
	ids := req.Identifiers
	if req.Outcome == model.OutcomeSuccess && s.signer != nil && s.signer.Validate(o.OrderID, ids.PaymentID, ids.Signature) {
		o.Status = model.OrderSuccess
		o.TransactionID = ids.PaymentID
		return o, nil
	}

	var report gateway.Report
	if s.checker != nil {
		var err error
		report, err = s.checker.CheckStatus(ctx, o.OrderID)
		if err != nil {
			return o, fmt.Errorf("check gateway status: %w", err)
		}
	}
	if report.Status == gateway.StatusPaid {
		o.Status = model.OrderSuccess
		o.TransactionID = firstNonEmpty(report.TransactionID, ids.PaymentID)
		return o, nil
	}

	switch req.Outcome {
	case model.OutcomeSuccess:
		// An unsigned success claim the gateway cannot back.
		if report.Status == gateway.StatusPending {
			return o, nil
		}
		o.Status = model.OrderFailed
	case model.OutcomeFailure:
		o.Status = model.OrderFailed
	case model.OutcomeDismissed:
		switch report.Status {
		case gateway.StatusPending:
			return o, nil
		case gateway.StatusFailed:
			o.Status = model.OrderFailed
		default:
			o.Status = model.OrderCancelled
		}
	}
	return o, nil
}

// ApplyNotification records a status pushed by the gateway. Pending and
// unknown statuses leave the order as it is.
func (s *Service) ApplyNotification(ctx context.Context, orderID string, status gateway.Status, transactionID string) (model.PaymentOrder, error) {
	order, err := s.store.Resolve(ctx, orderID, func(o model.PaymentOrder) (model.PaymentOrder, error) {
		if o.Status.Terminal() {
			return o, nil
		}
		switch status {
		case gateway.StatusPaid:
			o.Status = model.OrderSuccess
			o.TransactionID = transactionID
		case gateway.StatusFailed:
			o.Status = model.OrderFailed
		case gateway.StatusCancelled:
			o.Status = model.OrderCancelled
		}
		return o, nil
	})
	if err != nil {
		return model.PaymentOrder{}, err
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "gateway_status": status, "status": order.Status}).Info("gateway notification applied")
	return order, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ payment.Verifier = (*Service)(nil)
