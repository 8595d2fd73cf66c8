// Package payment creates fee orders, hands them to a gateway and records the
// outcome. The verification service decides every final status; the engine
// only reports what the gateway said.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// OrderService issues orders for an application.
type OrderService interface {
	CreateOrder(ctx context.Context, applicationID string, amount int64, currency string) (model.PaymentOrder, error)
}

// VerifyRequest is sent once per reported outcome. The service must accept
// repeats for the same order.
type VerifyRequest struct {
	ApplicationID string            `json:"application_id"`
	OrderID       string            `json:"order_id"`
	Outcome       model.Outcome     `json:"outcome"`
	Identifiers   model.Identifiers `json:"identifiers"`
}

// VerifyResult is authoritative.
type VerifyResult struct {
	Status        model.OrderStatus `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
}

// Verifier is the verification service.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// Prefill is passed to the gateway's checkout form.
type Prefill struct {
	Name    string
	Email   string
	Contact string
}

// Checkout is what a gateway needs to collect the fee.
type Checkout struct {
	Order   model.PaymentOrder
	Prefill Prefill
}

// Reporter receives the single outcome of a gateway session.
type Reporter func(outcome model.Outcome, ids model.Identifiers)

// Gateway is the third-party payment collaborator. Invoke may return before
// the outcome is known; report is called exactly once, possibly from another
// goroutine.
type Gateway interface {
	Invoke(ctx context.Context, checkout Checkout, report Reporter) error
}

// ApplicationRef exposes the id assigned when BasicInfo was saved.
type ApplicationRef interface {
	ApplicationID() string
}

// Confirmer is told about authoritative success.
type Confirmer interface {
	PaymentConfirmed(ctx context.Context, order model.PaymentOrder) error
}

// Engine owns every PaymentOrder of one session.
type Engine struct {
	orders    OrderService
	verifier  Verifier
	gateway   Gateway
	app       ApplicationRef
	confirmer Confirmer
	log       logrus.FieldLogger

	flight singleflight.Group

	mu         sync.Mutex
	current    string
	known      map[string]model.PaymentOrder
	locks      map[string]*sync.Mutex
	superseded map[string]struct{}
	settled    []func(model.PaymentOrder, error)
}

// Deps groups the Engine's collaborators.
type Deps struct {
	Orders    OrderService
	Verifier  Verifier
	Gateway   Gateway
	App       ApplicationRef
	Confirmer Confirmer
	Logger    logrus.FieldLogger
}

// NewEngine constructs an Engine with no order.
func NewEngine(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		orders:     d.Orders,
		verifier:   d.Verifier,
		gateway:    d.Gateway,
		app:        d.App,
		confirmer:  d.Confirmer,
		log:        logger,
		known:      make(map[string]model.PaymentOrder),
		locks:      make(map[string]*sync.Mutex),
		superseded: make(map[string]struct{}),
	}
}

// OnSettled registers fn to run after every gateway-driven reconciliation.
func (e *Engine) OnSettled(fn func(model.PaymentOrder, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settled = append(e.settled, fn)
}

// CreateOrder returns the pending order of the application, creating one if
// none is pending. Concurrent calls share a single request.
func (e *Engine) CreateOrder(ctx context.Context, amount int64, currency string) (model.PaymentOrder, error) {
	appID := e.app.ApplicationID()
	if appID == "" {
		return model.PaymentOrder{}, &OrderError{Err: ErrNoApplication}
	}
	if amount <= 0 || currency == "" {
		return model.PaymentOrder{}, &OrderError{Err: fmt.Errorf("%w: %d %s", ErrInvalidAmount, amount, currency)}
	}
	if o, ok, err := e.reusable(); ok || err != nil {
		return o, err
	}

	v, err, shared := e.flight.Do(appID, func() (interface{}, error) {
		if o, ok, err := e.reusable(); ok || err != nil {
			return o, err
		}
		o, err := e.orders.CreateOrder(ctx, appID, amount, currency)
		if err != nil {
			return nil, &OrderError{Err: err}
		}
		return e.adopt(appID, o)
	})
	if err != nil {
		var oerr *OrderError
		if !errors.As(err, &oerr) {
			err = &OrderError{Err: err}
		}
		return model.PaymentOrder{}, err
	}
	order := v.(model.PaymentOrder)
	e.log.WithFields(logrus.Fields{"order_id": order.OrderID, "application_id": appID, "shared": shared}).Info("payment order ready")
	return order, nil
}

// reusable returns the current order when it is still pending.
func (e *Engine) reusable() (model.PaymentOrder, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == "" {
		return model.PaymentOrder{}, false, nil
	}
	o := e.known[e.current]
	switch o.Status {
	case model.OrderCreated:
		return o, true, nil
	case model.OrderSuccess:
		return model.PaymentOrder{}, false, &OrderError{Err: ErrAlreadyPaid}
	}
	return model.PaymentOrder{}, false, nil
}

// adopt records a freshly issued order and supersedes the previous one.
func (e *Engine) adopt(appID string, o model.PaymentOrder) (model.PaymentOrder, error) {
	if o.OrderID == "" {
		return model.PaymentOrder{}, &OrderError{Err: errors.New("service returned an order without id")}
	}
	if o.ApplicationID == "" {
		o.ApplicationID = appID
	}
	if o.ApplicationID != appID {
		return model.PaymentOrder{}, &OrderError{Err: fmt.Errorf("order %s belongs to %s", o.OrderID, o.ApplicationID)}
	}
	if o.Status == "" {
		o.Status = model.OrderCreated
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, reused := e.superseded[o.OrderID]; reused {
		return model.PaymentOrder{}, &OrderError{Err: fmt.Errorf("%w: %s", ErrOrderReused, o.OrderID)}
	}
	if prev, ok := e.known[o.OrderID]; ok && prev.Status.Terminal() {
		return model.PaymentOrder{}, &OrderError{Err: fmt.Errorf("%w: %s", ErrOrderReused, o.OrderID)}
	}
	if e.current != "" && e.current != o.OrderID {
		e.superseded[e.current] = struct{}{}
	}
	e.current = o.OrderID
	e.known[o.OrderID] = o
	if _, ok := e.locks[o.OrderID]; !ok {
		e.locks[o.OrderID] = &sync.Mutex{}
	}
	return o, nil
}

// InvokeGateway hands a pending order to the gateway. The reported outcome
// is reconciled and passed to the OnSettled listeners.
func (e *Engine) InvokeGateway(ctx context.Context, order model.PaymentOrder, prefill Prefill) error {
	e.mu.Lock()
	cur, ok := e.known[order.OrderID]
	isCurrent := e.current == order.OrderID
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, order.OrderID)
	}
	if !isCurrent || cur.Status != model.OrderCreated {
		return fmt.Errorf("%w: %s is %s", ErrOrderNotPending, order.OrderID, cur.Status)
	}

	callbackCtx := context.WithoutCancel(ctx)
	var once sync.Once
	report := func(outcome model.Outcome, ids model.Identifiers) {
		once.Do(func() {
			settled, err := e.Reconcile(callbackCtx, cur.OrderID, outcome, ids)
			e.notify(settled, err)
		})
	}
	e.log.WithField("order_id", cur.OrderID).Info("opening payment gateway")
	return e.gateway.Invoke(ctx, Checkout{Order: cur, Prefill: prefill}, report)
}

func (e *Engine) notify(o model.PaymentOrder, err error) {
	e.mu.Lock()
	listeners := append([]func(model.PaymentOrder, error){}, e.settled...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(o, err)
	}
}

// Reconcile reports outcome for orderID to the verification service and
// adopts the returned status. Calls for one order are serialized; once an
// order is terminal further calls return it without contacting the service.
func (e *Engine) Reconcile(ctx context.Context, orderID string, outcome model.Outcome, ids model.Identifiers) (model.PaymentOrder, error) {
	if !outcome.Valid() {
		return model.PaymentOrder{}, fmt.Errorf("unknown outcome %q", outcome)
	}
	e.mu.Lock()
	lock, ok := e.locks[orderID]
	e.mu.Unlock()
	if !ok {
		return model.PaymentOrder{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	order := e.known[orderID]
	e.mu.Unlock()
	if order.Status.Terminal() {
		return order, nil
	}

	logger := e.log.WithFields(logrus.Fields{"order_id": orderID, "outcome": outcome})
	res, err := e.verifier.Verify(ctx, VerifyRequest{
		ApplicationID: order.ApplicationID,
		OrderID:       orderID,
		Outcome:       outcome,
		Identifiers:   ids,
	})
	if err != nil {
		logger.WithError(err).Warn("verification failed")
		return order, &VerificationError{OrderID: orderID, Err: err}
	}
	if !res.Status.Valid() {
		return order, &VerificationError{OrderID: orderID, Err: fmt.Errorf("unknown status %q", res.Status)}
	}
	if res.Status == model.OrderCreated {
		logger.Info("verification service still reports the order pending")
		return order, nil
	}

	order.Status = res.Status
	if res.TransactionID != "" {
		order.TransactionID = res.TransactionID
	}
	e.mu.Lock()
	e.known[orderID] = order
	e.mu.Unlock()
	logger.WithField("status", order.Status).Info("order reconciled")

	if order.Status == model.OrderSuccess && e.confirmer != nil {
		if err := e.confirmer.PaymentConfirmed(ctx, order); err != nil {
			return order, fmt.Errorf("confirm payment: %w", err)
		}
	}
	return order, nil
}

// Current returns the most recent order.
func (e *Engine) Current() (model.PaymentOrder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == "" {
		return model.PaymentOrder{}, false
	}
	return e.known[e.current], true
}

// HasPendingOrder reports whether an unresolved order exists.
func (e *Engine) HasPendingOrder() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != "" && e.known[e.current].Status == model.OrderCreated
}
