package verification

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/signing"
)

var errNoOrder = errors.New("no such order")

type memStore struct {
	mu        sync.Mutex
	orders    map[string]model.PaymentOrder
	submitted map[string]int
}

func newStore(orders ...model.PaymentOrder) *memStore {
	s := &memStore{orders: make(map[string]model.PaymentOrder), submitted: make(map[string]int)}
	for _, o := range orders {
		s.orders[o.OrderID] = o
	}
	return s
}

func (s *memStore) Resolve(ctx context.Context, orderID string, decide func(model.PaymentOrder) (model.PaymentOrder, error)) (model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[orderID]
	if !ok {
		return model.PaymentOrder{}, errNoOrder
	}
	next, err := decide(cur)
	if err != nil {
		return cur, err
	}
	if next.Status == model.OrderSuccess && cur.Status != model.OrderSuccess {
		s.submitted[cur.ApplicationID]++
	}
	s.orders[orderID] = next
	return next, nil
}

type fakeChecker struct {
	report gateway.Report
	err    error
	calls  atomic.Int32
}

func (f *fakeChecker) CheckStatus(context.Context, string) (gateway.Report, error) {
	f.calls.Add(1)
	return f.report, f.err
}

var signer = signing.NewSigner([]byte("payment-secret"))

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pending() model.PaymentOrder {
	return model.PaymentOrder{OrderID: "order_1", ApplicationID: "app", Amount: 23600, Currency: "INR", Status: model.OrderCreated}
}

func TestDecisionTable(t *testing.T) {
	signed := model.Identifiers{PaymentID: "pay_1", Signature: signer.Sign("order_1", "pay_1")}
	forged := model.Identifiers{PaymentID: "pay_1", Signature: "deadbeef"}
	cases := []struct {
		name    string
		outcome model.Outcome
		ids     model.Identifiers
		checker *fakeChecker
		want    model.OrderStatus
	}{
		{"signed success", model.OutcomeSuccess, signed, nil, model.OrderSuccess},
		{"forged success without gateway", model.OutcomeSuccess, forged, nil, model.OrderFailed},
		{"unsigned success gateway paid", model.OutcomeSuccess, forged, &fakeChecker{report: gateway.Report{Status: gateway.StatusPaid, TransactionID: "tx"}}, model.OrderSuccess},
		{"unsigned success gateway pending", model.OutcomeSuccess, forged, &fakeChecker{report: gateway.Report{Status: gateway.StatusPending}}, model.OrderCreated},
		{"unsigned success gateway unknown", model.OutcomeSuccess, forged, &fakeChecker{report: gateway.Report{Status: gateway.StatusNotFound}}, model.OrderFailed},
		{"failure", model.OutcomeFailure, model.Identifiers{}, nil, model.OrderFailed},
		{"failure but gateway paid", model.OutcomeFailure, model.Identifiers{}, &fakeChecker{report: gateway.Report{Status: gateway.StatusPaid}}, model.OrderSuccess},
		{"dismissed", model.OutcomeDismissed, model.Identifiers{}, nil, model.OrderCancelled},
		{"dismissed gateway unknown", model.OutcomeDismissed, model.Identifiers{}, &fakeChecker{report: gateway.Report{Status: gateway.StatusNotFound}}, model.OrderCancelled},
		{"dismissed gateway pending", model.OutcomeDismissed, model.Identifiers{}, &fakeChecker{report: gateway.Report{Status: gateway.StatusPending}}, model.OrderCreated},
		{"dismissed gateway paid", model.OutcomeDismissed, model.Identifiers{}, &fakeChecker{report: gateway.Report{Status: gateway.StatusPaid}}, model.OrderSuccess},
		{"dismissed gateway failed", model.OutcomeDismissed, model.Identifiers{}, &fakeChecker{report: gateway.Report{Status: gateway.StatusFailed}}, model.OrderFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var checker gateway.Checker
			if tc.checker != nil {
				checker = tc.checker
			}
			store := newStore(pending())
			svc := New(store, signer, checker, quiet())
			res, err := svc.Verify(context.Background(), payment.VerifyRequest{ApplicationID: "app", OrderID: "order_1", Outcome: tc.outcome, Identifiers: tc.ids})
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if res.Status != tc.want {
				t.Fatalf("status = %s, want %s", res.Status, tc.want)
			}
			if wantSubmitted := tc.want == model.OrderSuccess; (store.submitted["app"] == 1) != wantSubmitted {
				t.Fatalf("submitted = %d", store.submitted["app"])
			}
		})
	}
}

func TestSignedSuccessSkipsGateway(t *testing.T) {
	checker := &fakeChecker{report: gateway.Report{Status: gateway.StatusFailed}}
	svc := New(newStore(pending()), signer, checker, quiet())
	res, err := svc.Verify(context.Background(), payment.VerifyRequest{
		ApplicationID: "app", OrderID: "order_1", Outcome: model.OutcomeSuccess,
		Identifiers: model.Identifiers{PaymentID: "pay_1", Signature: signer.Sign("order_1", "pay_1")},
	})
	if err != nil || res.Status != model.OrderSuccess || res.TransactionID != "pay_1" {
		t.Fatalf("verify: %+v %v", res, err)
	}
	if checker.calls.Load() != 0 {
		t.Fatalf("gateway consulted for a signed report")
	}
}

func TestTerminalOrderIsIdempotent(t *testing.T) {
	checker := &fakeChecker{report: gateway.Report{Status: gateway.StatusPaid}}
	store := newStore(pending())
	svc := New(store, signer, checker, quiet())
	req := payment.VerifyRequest{ApplicationID: "app", OrderID: "order_1", Outcome: model.OutcomeDismissed}
	if res, err := svc.Verify(context.Background(), req); err != nil || res.Status != model.OrderSuccess {
		t.Fatalf("first verify: %+v %v", res, err)
	}
	req.Outcome = model.OutcomeFailure
	checker.report = gateway.Report{Status: gateway.StatusFailed}
	res, err := svc.Verify(context.Background(), req)
	if err != nil || res.Status != model.OrderSuccess {
		t.Fatalf("repeat verify changed a terminal order: %+v %v", res, err)
	}
	if checker.calls.Load() != 1 || store.submitted["app"] != 1 {
		t.Fatalf("calls=%d submitted=%d", checker.calls.Load(), store.submitted["app"])
	}
}

func TestConcurrentReportsResolveOnce(t *testing.T) {
	checker := &fakeChecker{report: gateway.Report{Status: gateway.StatusPaid}}
	store := newStore(pending())
	svc := New(store, signer, checker, quiet())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Verify(context.Background(), payment.VerifyRequest{ApplicationID: "app", OrderID: "order_1", Outcome: model.OutcomeSuccess})
		}()
	}
	wg.Wait()
	if store.submitted["app"] != 1 || checker.calls.Load() != 1 {
		t.Fatalf("submitted=%d calls=%d", store.submitted["app"], checker.calls.Load())
	}
}

func TestVerifyErrors(t *testing.T) {
	svc := New(newStore(pending()), signer, &fakeChecker{err: errors.New("gateway down")}, quiet())
	ctx := context.Background()
	if _, err := svc.Verify(ctx, payment.VerifyRequest{ApplicationID: "other", OrderID: "order_1", Outcome: model.OutcomeFailure}); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch, got %v", err)
	}
	if _, err := svc.Verify(ctx, payment.VerifyRequest{ApplicationID: "app", OrderID: "missing", Outcome: model.OutcomeFailure}); !errors.Is(err, errNoOrder) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := svc.Verify(ctx, payment.VerifyRequest{ApplicationID: "app", OrderID: "order_1", Outcome: "maybe"}); err == nil {
		t.Fatalf("expected error for unknown outcome")
	}
	if _, err := svc.Verify(ctx, payment.VerifyRequest{ApplicationID: "app", OrderID: "order_1", Outcome: model.OutcomeDismissed}); err == nil {
		t.Fatalf("expected gateway error to surface")
	}
}

func TestApplyNotification(t *testing.T) {
	store := newStore(pending())
	svc := New(store, signer, nil, quiet())
	ctx := context.Background()
	o, err := svc.ApplyNotification(ctx, "order_1", gateway.StatusPending, "")
	if err != nil || o.Status != model.OrderCreated {
		t.Fatalf("pending notification: %+v %v", o, err)
	}
	o, err = svc.ApplyNotification(ctx, "order_1", gateway.StatusPaid, "tx-7")
	if err != nil || o.Status != model.OrderSuccess || o.TransactionID != "tx-7" {
		t.Fatalf("paid notification: %+v %v", o, err)
	}
	o, err = svc.ApplyNotification(ctx, "order_1", gateway.StatusCancelled, "")
	if err != nil || o.Status != model.OrderSuccess {
		t.Fatalf("terminal order changed: %+v %v", o, err)
	}
}
