package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
	"github.com/dharsanguruparan/AdmitFlow/internal/verification"
)

type orderRequest struct {
	ApplicationID string `json:"application_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func newOrderID() string {
	return "order_" + uuid.NewString()
}

// handleCreateOrder returns the pending order of the application, creating
// one when none is pending, and opens a checkout session for it.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Amount != s.Fee || req.Currency != s.Currency {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("application fee is %d %s", s.Fee, s.Currency))
		return
	}
	app, err := s.owned(ctx, claimsOf(r), req.ApplicationID)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if app.Stage.Before(model.StagePayment) {
		s.respondError(w, http.StatusConflict, "application is not ready for payment")
		return
	}
	order, created, err := s.Orders.Pending(ctx, app.ID, req.Amount, req.Currency, newOrderID())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	logger := s.log.WithFields(logrus.Fields{"application_id": app.ID, "order_id": order.OrderID, "created": created})
	if order.CheckoutURL == "" && s.Checkout != nil {
		prefill := payment.Prefill{Name: app.Fields[model.StagePersonalDetails].Get("name_initial")}
		_, redirect, err := s.Checkout.Checkout(ctx, order, prefill)
		if err != nil {
			logger.WithError(err).Error("open checkout")
			s.respondError(w, http.StatusBadGateway, "payment gateway unavailable")
			return
		}
		if err := s.Orders.SetCheckoutURL(ctx, order.OrderID, redirect); err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		order.CheckoutURL = redirect
	}
	logger.Info("payment order issued")
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, order)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req payment.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.OrderID == "" || !req.Outcome.Valid() {
		s.respondError(w, http.StatusBadRequest, "order_id and a known outcome are required")
		return
	}
	if _, err := s.owned(ctx, claimsOf(r), req.ApplicationID); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	res, err := s.Verifier.Verify(ctx, req)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, res)
	case errors.Is(err, verification.ErrOrderMismatch):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "order not found")
	default:
		s.log.WithError(err).WithField("order_id", req.OrderID).Error("verify payment")
		s.respondError(w, http.StatusBadGateway, "payment could not be verified")
	}
}

// handleNotification accepts gateway status pushes. Unknown orders are
// acknowledged so the gateway stops retrying.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if s.Notifier == nil {
		s.respondError(w, http.StatusNotFound, "notifications are not configured")
		return
	}
	var n gateway.Notification
	if err := decodeJSON(w, r, &n); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.Notifier.VerifyNotification(n); err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	order, err := s.Verifier.ApplyNotification(r.Context(), n.OrderID, n.Status(), n.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WithField("order_id", n.OrderID).Warn("notification for unknown order")
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": string(order.Status)})
}
