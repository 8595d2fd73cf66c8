package api

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/client"
	"github.com/dharsanguruparan/AdmitFlow/internal/documents"
	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/queue"
	"github.com/dharsanguruparan/AdmitFlow/internal/signing"
	"github.com/dharsanguruparan/AdmitFlow/internal/verification"
)

var (
	jwtSecret  = []byte("jwt-secret")
	signSecret = []byte("sign-secret")
)

const serverKey = "server-key"

type harness struct {
	t       *testing.T
	db      *memDB
	objects *memObjects
	queue   *fakeQueue
	clock   *clockwork.FakeClock
	srv     *httptest.Server
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		db:      newMemDB(),
		objects: &memObjects{objects: map[string][]byte{}},
		queue:   &fakeQueue{},
		clock:   clockwork.NewFakeClockAt(time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)),
	}
	h.db.windows["PU2025"] = model.AdmissionWindow{
		AdmissionCode: "PU2025",
		AcademicYear:  "2025-26",
		IsOpen:        true,
		OpeningDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ClosingDate:   time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
	}
	log := quiet()
	orders := memOrders{h.db}
	s := New(Deps{
		Tokens:         auth.NewVerifier(jwtSecret),
		Applications:   memApps{h.db},
		Documents:      memDocs{h.db},
		Orders:         orders,
		Windows:        memWindows{h.db},
		Objects:        h.objects,
		Verifier:       verification.New(orders, signing.NewSigner(signSecret), nil, log),
		Checkout:       fakeCheckout{},
		Notifier:       gateway.NewMidtrans(serverKey, false),
		Queue:          h.queue,
		Fee:            23600,
		Currency:       "INR",
		MaxUploadBytes: 2 << 20,
		Clock:          h.clock,
		Logger:         log,
	})
	h.srv = httptest.NewServer(s.Routes())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) token(subject, role string) string {
	h.t.Helper()
	tok, err := auth.Issue(jwtSecret, subject, role, time.Hour, time.Now())
	if err != nil {
		h.t.Fatalf("issue: %v", err)
	}
	return tok
}

func (h *harness) client(subject, role string) *client.Client {
	return client.New(h.srv.URL, auth.StaticToken(h.token(subject, role)), client.WithLogger(quiet()))
}

func basicInfo() model.Fields {
	return model.Fields{
		model.FieldModeOfStudy: "ODL",
		model.FieldProgramme:   "PG",
		model.FieldCourse:      "M.A. English",
		model.FieldMedium:      "English",
	}
}

// startApplication saves BasicInfo for subject and returns the new id.
func (h *harness) startApplication(c *client.Client) string {
	h.t.Helper()
	res, err := c.SaveStage(context.Background(), "", model.StageBasicInfo, basicInfo())
	if err != nil || !res.Errors.OK() || res.ApplicationID == "" {
		h.t.Fatalf("save basic info: %+v %v", res, err)
	}
	return res.ApplicationID
}

// advance moves an application to the payment stage directly in the store.
func (h *harness) advance(id string) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	app := h.db.apps[id]
	app.Stage = model.StagePayment
	app.Fields[model.StagePersonalDetails] = model.Fields{"name_initial": "R. Kumar"}
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(24, 24, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func paddedJPEG(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return data
}

func smallPDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
}

func apiStatus(err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/api/application")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSaveAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.client("applicant-1", auth.RoleApplicant)

	app, err := c.Resume(ctx, "")
	if err != nil || app != nil {
		t.Fatalf("expected no application yet, got %+v %v", app, err)
	}
	id := h.startApplication(c)
	if !strings.HasPrefix(id, "PU/") {
		t.Fatalf("id = %q", id)
	}

	byID, err := c.Resume(ctx, id)
	if err != nil {
		t.Fatalf("resume by id: %v", err)
	}
	if byID.Stage != model.StagePersonalDetails || byID.Fields[model.StageBasicInfo].Get(model.FieldCourse) != "M.A. English" {
		t.Fatalf("unexpected application %+v", byID)
	}
	current, err := c.Resume(ctx, "")
	if err != nil || current == nil || current.ID != id {
		t.Fatalf("resume current: %+v %v", current, err)
	}

	other := h.client("applicant-2", auth.RoleApplicant)
	if _, err := other.Resume(ctx, id); apiStatus(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for another applicant, got %v", err)
	}
	admin := h.client("admin-1", auth.RoleAdmin)
	if _, err := admin.Resume(ctx, id); err != nil {
		t.Fatalf("admin resume: %v", err)
	}
}

func TestSaveStageRejectsInvalidFields(t *testing.T) {
	h := newHarness(t)
	c := h.client("applicant-1", auth.RoleApplicant)
	fields := basicInfo()
	fields[model.FieldMedium] = "Tamil"
	res, err := c.SaveStage(context.Background(), "", model.StageBasicInfo, fields)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Errors[model.FieldMedium] == "" {
		t.Fatalf("expected medium error, got %+v", res)
	}
	if len(h.db.apps) != 0 {
		t.Fatalf("invalid stage was persisted")
	}
}

func TestFirstSaveNeedsOpenWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	existing := h.client("applicant-1", auth.RoleApplicant)
	id := h.startApplication(existing)

	admin := h.client("admin-1", auth.RoleAdmin)
	if _, err := admin.CloseWindow(ctx, "PU2025"); err != nil {
		t.Fatalf("close: %v", err)
	}

	late := h.client("applicant-2", auth.RoleApplicant)
	_, err := late.SaveStage(ctx, "", model.StageBasicInfo, basicInfo())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Message != "admission window is closed" {
		t.Fatalf("expected closed window conflict, got %v", err)
	}
	// Applications already started keep saving.
	if _, err := existing.SaveStage(ctx, id, model.StageBasicInfo, basicInfo()); err != nil {
		t.Fatalf("existing save: %v", err)
	}
}

func TestUploadDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.client("applicant-1", auth.RoleApplicant)

	if _, err := c.Upload(ctx, model.RolePhoto, "me.jpg", documents.MimeJPEG, smallJPEG(t)); !errors.Is(err, documents.ErrRejected) {
		t.Fatalf("upload before basic info should be rejected, got %v", err)
	}
	id := h.startApplication(c)

	if _, err := c.Upload(ctx, model.RolePhoto, "big.jpg", documents.MimeJPEG, paddedJPEG(40<<10)); !errors.Is(err, documents.ErrRejected) {
		t.Fatalf("oversized photo should be rejected, got %v", err)
	}
	if _, err := c.Upload(ctx, model.RolePhoto, "me.pdf", documents.MimePDF, smallPDF()); !errors.Is(err, documents.ErrRejected) {
		t.Fatalf("pdf photo should be rejected, got %v", err)
	}

	remote, err := c.Upload(ctx, model.RolePhoto, "me.jpg", documents.MimeJPEG, smallJPEG(t))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if want := "/api/documents/" + url.PathEscape(id) + "/photo"; remote != want {
		t.Fatalf("remote url = %q, want %q", remote, want)
	}
	if _, err := c.Upload(ctx, model.RolePhoto, "again.jpg", documents.MimeJPEG, smallJPEG(t)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(h.objects.removed) != 1 || len(h.objects.objects) != 1 {
		t.Fatalf("replaced object not removed: removed=%v stored=%d", h.objects.removed, len(h.objects.objects))
	}

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+remote, nil)
	req.Header.Set("Authorization", "Bearer "+h.token("applicant-1", auth.RoleApplicant))
	noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := noFollow.Do(req)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), "https://minio.test/applications/") {
		t.Fatalf("redirect = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	app, err := c.Resume(ctx, id)
	if err != nil || app.Documents[model.RolePhoto] != remote {
		t.Fatalf("documents not hydrated: %+v %v", app, err)
	}
	if len(h.queue.tasks) != 0 {
		t.Fatalf("photo should not be inspected")
	}
}

func TestMarksheetUploadQueuesInspection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.client("applicant-1", auth.RoleApplicant)
	id := h.startApplication(c)

	if _, err := c.Upload(ctx, model.RoleMarksheetSSLC, "sslc.pdf", documents.MimePDF, smallPDF()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(h.queue.tasks) != 1 {
		t.Fatalf("queued %d tasks, want 1", len(h.queue.tasks))
	}
	task := h.queue.tasks[0]
	var payload queue.InspectPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if task.Type() != queue.InspectMarksheetTask || payload.ApplicationID != id || payload.Role != model.RoleMarksheetSSLC {
		t.Fatalf("unexpected task %s %+v", task.Type(), payload)
	}
}

func TestOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.client("applicant-1", auth.RoleApplicant)
	id := h.startApplication(c)

	if _, err := c.CreateOrder(ctx, id, 23600, "INR"); apiStatus(err) != http.StatusConflict {
		t.Fatalf("order before payment stage should conflict, got %v", err)
	}
	h.advance(id)
	if _, err := c.CreateOrder(ctx, id, 100, "INR"); apiStatus(err) != http.StatusBadRequest {
		t.Fatalf("fee mismatch should be 400, got %v", err)
	}

	order, err := c.CreateOrder(ctx, id, 23600, "INR")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != model.OrderCreated || order.CheckoutURL != "https://pay.test/"+order.OrderID {
		t.Fatalf("unexpected order %+v", order)
	}
	again, err := c.CreateOrder(ctx, id, 23600, "INR")
	if err != nil || again.OrderID != order.OrderID {
		t.Fatalf("pending order not reused: %+v %v", again, err)
	}

	other := h.client("applicant-2", auth.RoleApplicant)
	if _, err := other.CreateOrder(ctx, id, 23600, "INR"); apiStatus(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for another applicant, got %v", err)
	}

	unsigned, err := c.Verify(ctx, payment.VerifyRequest{
		ApplicationID: id, OrderID: order.OrderID, Outcome: model.OutcomeSuccess,
		Identifiers: model.Identifiers{PaymentID: "pay_1", Signature: "forged"},
	})
	if err != nil || unsigned.Status != model.OrderFailed {
		t.Fatalf("unverifiable success should fail: %+v %v", unsigned, err)
	}

	retry, err := c.CreateOrder(ctx, id, 23600, "INR")
	if err != nil || retry.OrderID == order.OrderID {
		t.Fatalf("retry should issue a new order: %+v %v", retry, err)
	}
	sig := signing.NewSigner(signSecret).Sign(retry.OrderID, "pay_2")
	res, err := c.Verify(ctx, payment.VerifyRequest{
		ApplicationID: id, OrderID: retry.OrderID, Outcome: model.OutcomeSuccess,
		Identifiers: model.Identifiers{PaymentID: "pay_2", Signature: sig},
	})
	if err != nil || res.Status != model.OrderSuccess || res.TransactionID != "pay_2" {
		t.Fatalf("signed success: %+v %v", res, err)
	}

	app, err := c.Resume(ctx, id)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if app.Status != model.StatusSubmitted || app.Payment == nil || app.Payment.OrderID != retry.OrderID {
		t.Fatalf("application not submitted: %+v", app)
	}
	if _, err := c.CreateOrder(ctx, id, 23600, "INR"); apiStatus(err) != http.StatusConflict {
		t.Fatalf("order after submission should conflict, got %v", err)
	}
	if _, err := c.Upload(ctx, model.RolePhoto, "me.jpg", documents.MimeJPEG, smallJPEG(t)); !errors.Is(err, documents.ErrRejected) {
		t.Fatalf("upload after submission should be rejected, got %v", err)
	}
}

func TestVerifyUnknownOrder(t *testing.T) {
	h := newHarness(t)
	c := h.client("applicant-1", auth.RoleApplicant)
	id := h.startApplication(c)
	_, err := c.Verify(context.Background(), payment.VerifyRequest{ApplicationID: id, OrderID: "order_missing", Outcome: model.OutcomeDismissed})
	if apiStatus(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestAdminWindowSwitch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.client("admin-1", auth.RoleAdmin)
	applicant := h.client("applicant-1", auth.RoleApplicant)

	if _, err := applicant.CloseWindow(ctx, "PU2025"); apiStatus(err) != http.StatusForbidden {
		t.Fatalf("applicant should be forbidden, got %v", err)
	}
	if _, err := admin.OpenWindow(ctx, "PU2025"); apiStatus(err) != http.StatusConflict {
		t.Fatalf("opening an open window should conflict, got %v", err)
	}
	win, err := admin.CloseWindow(ctx, "PU2025")
	if err != nil || win.IsOpen {
		t.Fatalf("close: %+v %v", win, err)
	}
	got, err := applicant.Window(ctx, "2025-26")
	if err != nil || got.IsOpen {
		t.Fatalf("window: %+v %v", got, err)
	}

	h.clock.Advance(90 * 24 * time.Hour)
	if _, err := admin.OpenWindow(ctx, "PU2025"); apiStatus(err) != http.StatusConflict {
		t.Fatalf("opening after closing date should conflict, got %v", err)
	}
	if _, err := admin.OpenWindow(ctx, "NOPE"); apiStatus(err) != http.StatusNotFound {
		t.Fatalf("unknown window should be 404, got %v", err)
	}
}

func TestAdminSaveWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.client("admin-1", auth.RoleAdmin)

	bad := model.AdmissionWindow{
		AdmissionCode: "PU2026", AcademicYear: "2026-27",
		OpeningDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		ClosingDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if _, err := admin.SaveWindow(ctx, bad); apiStatus(err) != http.StatusBadRequest {
		t.Fatalf("inverted dates should be 400, got %v", err)
	}
	bad.OpeningDate, bad.ClosingDate = bad.ClosingDate, bad.OpeningDate
	saved, err := admin.SaveWindow(ctx, bad)
	if err != nil || saved.AdmissionCode != "PU2026" {
		t.Fatalf("save: %+v %v", saved, err)
	}
}

func notify(t *testing.T, h *harness, n gateway.Notification) (int, map[string]string) {
	t.Helper()
	body, _ := json.Marshal(n)
	resp, err := http.Post(h.srv.URL+"/api/payments/notifications", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func signNotification(n gateway.Notification) string {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func TestGatewayNotification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.client("applicant-1", auth.RoleApplicant)
	id := h.startApplication(c)
	h.advance(id)
	order, err := c.CreateOrder(ctx, id, 23600, "INR")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	n := gateway.Notification{
		OrderID:           order.OrderID,
		StatusCode:        "200",
		GrossAmount:       "236.00",
		TransactionStatus: "settlement",
		TransactionID:     "tx-1",
		SignatureKey:      "bogus",
	}
	if status, _ := notify(t, h, n); status != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", status)
	}

	n.SignatureKey = signNotification(n)
	status, body := notify(t, h, n)
	if status != http.StatusOK || body["status"] != string(model.OrderSuccess) {
		t.Fatalf("notification = %d %v", status, body)
	}
	app, err := c.Resume(ctx, id)
	if err != nil || app.Status != model.StatusSubmitted || app.Payment.TransactionID != "tx-1" {
		t.Fatalf("application after notification: %+v %v", app, err)
	}

	n.OrderID = "order_unknown"
	n.SignatureKey = signNotification(n)
	if status, body := notify(t, h, n); status != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("unknown order = %d %v", status, body)
	}
}
