// Package client talks to the AdmitFlow API on behalf of the applicant
// session. It implements the persistence, upload, window, order and
// verification contracts the core depends on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/documents"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/stage"
	"github.com/dharsanguruparan/AdmitFlow/internal/validation"
	"github.com/dharsanguruparan/AdmitFlow/internal/window"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL      string
	http         *http.Client
	tokens       auth.TokenSource
	academicYear string
	log          logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with a 30s timeout.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithAcademicYear scopes Resume("") and Window("") to a cycle.
func WithAcademicYear(year string) Option { return func(c *Client) { c.academicYear = year } }

// WithLogger replaces the standard logrus logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// New constructs a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, tokens auth.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorBody is the JSON error envelope written by the API.
type errorBody struct {
	Error  string            `json:"error"`
	Errors validation.Errors `json:"errors,omitempty"`
}

type saveStageRequest struct {
	ApplicationID string       `json:"application_id,omitempty"`
	Fields        model.Fields `json:"fields"`
}

type uploadResponse struct {
	RemoteURL string `json:"remote_url"`
}

type orderRequest struct {
	ApplicationID string `json:"application_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// Resume fetches an application by id, or the caller's application for the
// configured academic year when id is empty. It returns nil, nil when the
// applicant has not saved anything yet.
func (c *Client) Resume(ctx context.Context, applicationID string) (*model.Application, error) {
	path := "/api/application"
	if applicationID != "" {
		path = "/api/applications/" + url.PathEscape(applicationID)
	} else if c.academicYear != "" {
		path += "?academic_year=" + url.QueryEscape(c.academicYear)
	}
	var app model.Application
	status, err := c.doJSON(ctx, http.MethodGet, path, nil, &app)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &app, nil
}

// SaveStage persists the fields of one stage. Field errors from the server
// come back in the result, not as an error.
func (c *Client) SaveStage(ctx context.Context, applicationID string, s model.Stage, fields model.Fields) (stage.SaveResult, error) {
	var res stage.SaveResult
	_, err := c.doJSON(ctx, http.MethodPost, "/api/applications/stages/"+string(s), saveStageRequest{ApplicationID: applicationID, Fields: fields}, &res)
	var apiErr *fieldErrors
	if errors.As(err, &apiErr) {
		return stage.SaveResult{ApplicationID: applicationID, Errors: apiErr.fields}, nil
	}
	if err != nil {
		return stage.SaveResult{}, err
	}
	return res, nil
}

// Upload sends one document for the configured academic year. Client errors
// wrap documents.ErrRejected so they are not retried, except 408 and 429.
// A refused credential is also final.
func (c *Client) Upload(ctx context.Context, role model.Role, fileName, mime string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	hdr.Set("Content-Type", mime)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	path := "/api/documents/" + string(role)
	if c.academicYear != "" {
		path += "?academic_year=" + url.QueryEscape(c.academicYear)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res uploadResponse
	if _, err := c.do(req, &res); err != nil {
		if errors.Is(err, auth.ErrNoCredential) {
			return "", fmt.Errorf("%w: %w", documents.ErrRejected, err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && permanent(apiErr.Status) {
			return "", fmt.Errorf("%w: %s", documents.ErrRejected, apiErr.Message)
		}
		return "", err
	}
	if res.RemoteURL == "" {
		return "", errors.New("upload response without remote_url")
	}
	return res.RemoteURL, nil
}

func permanent(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

// Window returns the admission window of academicYear, or of the configured
// year when empty.
func (c *Client) Window(ctx context.Context, academicYear string) (model.AdmissionWindow, error) {
	if academicYear == "" {
		academicYear = c.academicYear
	}
	path := "/api/admission-window"
	if academicYear != "" {
		path += "?academic_year=" + url.QueryEscape(academicYear)
	}
	var win model.AdmissionWindow
	_, err := c.doJSON(ctx, http.MethodGet, path, nil, &win)
	return win, err
}

// CreateOrder asks the order service for the pending order of appID.
func (c *Client) CreateOrder(ctx context.Context, appID string, amount int64, currency string) (model.PaymentOrder, error) {
	var o model.PaymentOrder
	_, err := c.doJSON(ctx, http.MethodPost, "/api/orders", orderRequest{ApplicationID: appID, Amount: amount, Currency: currency}, &o)
	return o, err
}

// Verify reports a gateway outcome and returns the authoritative status.
func (c *Client) Verify(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResult, error) {
	var res payment.VerifyResult
	_, err := c.doJSON(ctx, http.MethodPost, "/api/payments/verify", req, &res)
	return res, err
}

// SaveWindow creates or replaces a cycle's window. Admin only.
func (c *Client) SaveWindow(ctx context.Context, win model.AdmissionWindow) (model.AdmissionWindow, error) {
	var out model.AdmissionWindow
	_, err := c.doJSON(ctx, http.MethodPost, "/api/admin/admission-windows", win, &out)
	return out, err
}

// OpenWindow switches a window on. Admin only.
func (c *Client) OpenWindow(ctx context.Context, code string) (model.AdmissionWindow, error) {
	var out model.AdmissionWindow
	_, err := c.doJSON(ctx, http.MethodPost, "/api/admin/admission-windows/"+url.PathEscape(code)+"/open", nil, &out)
	return out, err
}

// CloseWindow switches a window off. Admin only.
func (c *Client) CloseWindow(ctx context.Context, code string) (model.AdmissionWindow, error) {
	var out model.AdmissionWindow
	_, err := c.doJSON(ctx, http.MethodPost, "/api/admin/admission-windows/"+url.PathEscape(code)+"/close", nil, &out)
	return out, err
}

// fieldErrors is a 422 with field messages.
type fieldErrors struct {
	fields validation.Errors
}

func (e *fieldErrors) Error() string { return e.fields.Error() }

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) (int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	c.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("api call")

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		if resp.StatusCode == http.StatusUnprocessableEntity && len(eb.Errors) > 0 {
			return resp.StatusCode, &fieldErrors{fields: eb.Errors}
		}
		msg := eb.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return resp.StatusCode, fmt.Errorf("%w: %s", auth.ErrNoCredential, msg)
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

var (
	_ stage.Persistence    = (*Client)(nil)
	_ documents.Uploader   = (*Client)(nil)
	_ payment.OrderService = (*Client)(nil)
	_ payment.Verifier     = (*Client)(nil)
	_ window.Source        = (*Client)(nil)
)
