// Package api serves the AdmitFlow HTTP API: application persistence,
// document uploads, admission windows and payment verification.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/queue"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
)

// Applications is the application store.
type Applications interface {
	Get(ctx context.Context, id string) (*model.Application, error)
	ForApplicant(ctx context.Context, applicantID, academicYear string) (*model.Application, error)
	SaveStage(ctx context.Context, s repository.StageSave) (*model.Application, error)
}

// Documents is the upload metadata store.
type Documents interface {
	Put(ctx context.Context, doc *repository.Document) (string, error)
	Get(ctx context.Context, applicationID string, role model.Role) (*repository.Document, error)
	Roles(ctx context.Context, applicationID string) ([]model.Role, error)
}

// Orders is the payment order store.
type Orders interface {
	Latest(ctx context.Context, applicationID string) (model.PaymentOrder, error)
	Pending(ctx context.Context, applicationID string, amount int64, currency, newID string) (model.PaymentOrder, bool, error)
	SetCheckoutURL(ctx context.Context, orderID, url string) error
}

// Windows is the admission window store.
type Windows interface {
	ForYear(ctx context.Context, academicYear string) (model.AdmissionWindow, error)
	Get(ctx context.Context, code string) (model.AdmissionWindow, error)
	Save(ctx context.Context, w model.AdmissionWindow) (model.AdmissionWindow, error)
	SetOpen(ctx context.Context, code string, open bool) (model.AdmissionWindow, error)
}

// Objects is the document object store.
type Objects interface {
	Put(ctx context.Context, objectKey string, data []byte, contentType string) error
	Remove(ctx context.Context, objectKey string) error
	Presign(ctx context.Context, objectKey, fileName string, ttl time.Duration) (string, error)
}

// Verifier decides order statuses.
type Verifier interface {
	payment.Verifier
	ApplyNotification(ctx context.Context, orderID string, status gateway.Status, transactionID string) (model.PaymentOrder, error)
}

// Checkout opens a hosted payment page for an order.
type Checkout interface {
	Checkout(ctx context.Context, order model.PaymentOrder, prefill payment.Prefill) (token, redirectURL string, err error)
}

// Notifier authenticates gateway notifications.
type Notifier interface {
	VerifyNotification(n gateway.Notification) error
}

// Deps groups the Server's collaborators. Checkout, Notifier and Queue may
// be nil.
type Deps struct {
	Address        string
	Tokens         *auth.Verifier
	Applications   Applications
	Documents      Documents
	Orders         Orders
	Windows        Windows
	Objects        Objects
	Verifier       Verifier
	Checkout       Checkout
	Notifier       Notifier
	Queue          queue.Enqueuer
	Fee            int64
	Currency       string
	MaxUploadBytes int64
	SignedURLTTL   time.Duration
	Clock          clockwork.Clock
	Logger         logrus.FieldLogger
}

// Server exposes the HTTP endpoints.
type Server struct {
	Deps
	log logrus.FieldLogger
}

// New constructs a Server.
func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.SignedURLTTL <= 0 {
		d.SignedURLTTL = 5 * time.Minute
	}
	return &Server{Deps: d, log: d.Logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.loggingMiddleware, corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/payments/notifications", s.handleNotification)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Tokens))
		r.Get("/api/application", s.handleCurrentApplication)
		r.Get("/api/applications/{id}", s.handleApplication)
		r.Post("/api/applications/stages/{stage}", s.handleSaveStage)
		r.Post("/api/documents/{role}", s.handleUpload)
		r.Get("/api/documents/{applicationID}/{role}", s.handleDocument)
		r.Get("/api/admission-window", s.handleWindow)
		r.Post("/api/orders", s.handleCreateOrder)
		r.Post("/api/payments/verify", s.handleVerify)

		r.Route("/api/admin/admission-windows", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/", s.handleSaveWindow)
			r.Post("/{code}/open", s.handleOpenWindow)
			r.Post("/{code}/close", s.handleCloseWindow)
		})
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.WithField("address", s.Address).Info("api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathParam returns a chi parameter with percent-escapes removed. Ids like
// PU/ODL/DIRECT/2025/000001 travel escaped in one segment.
func pathParam(r *http.Request, name string) (string, error) {
	return url.PathUnescape(chi.URLParam(r, name))
}

// documentURL is the stable API address of an uploaded document.
func documentURL(applicationID string, role model.Role) string {
	return "/api/documents/" + url.PathEscape(applicationID) + "/" + string(role)
}

type errorBody struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Warn("encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorBody{Error: msg})
}

// respondStoreError maps repository errors to statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrNotOwner):
		s.respondError(w, http.StatusForbidden, auth.ErrForbidden.Error())
	case errors.Is(err, repository.ErrSubmitted), errors.Is(err, repository.ErrStageSkipped):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}
