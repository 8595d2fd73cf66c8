// Package auth parses the bearer credential issued by the identity service.
// Issuing tokens for real applicants happens elsewhere; Issue exists for the
// admin CLI and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

const (
	RoleApplicant = "applicant"
	RoleAdmin     = "admin"
)

var (
	// ErrNoCredential is the hard precondition failure for every call that
	// needs an identity.
	ErrNoCredential = errors.New("no identity credential")
	ErrForbidden    = errors.New("forbidden")
)

// Claims carries the applicant id in sub and the caller role. Applicants who
// signed up through a learner support centre carry its code and name.
type Claims struct {
	Role    string `json:"role"`
	LSCCode string `json:"lsc_code,omitempty"`
	LSCName string `json:"lsc_name,omitempty"`
	jwt.RegisteredClaims
}

// Referral returns the centre attribution, or nil for direct signups.
func (c *Claims) Referral() *model.Referral {
	if c.LSCCode == "" {
		return nil
	}
	return &model.Referral{Code: c.LSCCode, Name: c.LSCName}
}

// TokenSource supplies the bearer credential for outgoing calls.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed bearer credential. Expiry is read without
// verifying the signature; the server does the verification.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrNoCredential
	}
	claims, err := PeekClaims(tok)
	if err != nil {
		return "", err
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w: token expired", ErrNoCredential)
	}
	return tok, nil
}

// PeekClaims decodes token without verifying its signature. Only the server
// may trust the result.
func PeekClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	return claims, nil
}

// IssueOption adjusts the claims of an issued token.
type IssueOption func(*Claims)

// WithReferral attributes the token to a learner support centre.
func WithReferral(code, name string) IssueOption {
	return func(c *Claims) {
		c.LSCCode = code
		c.LSCName = name
	}
}

// Issue signs an HS256 token for subject.
func Issue(secret []byte, subject, role string, ttl time.Duration, now time.Time, opts ...IssueOption) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, opt := range opts {
		opt(&claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks HS256 tokens on the server side.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Parse verifies signature and expiry.
func (v *Verifier) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", ErrNoCredential)
	}
	return claims, nil
}

type ctxKey struct{}

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the claims stored by Middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// BearerToken extracts the credential from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", ErrNoCredential
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrNoCredential)
	}
	return strings.TrimSpace(tok), nil
}

// Middleware rejects requests without a valid token and stores the claims.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := BearerToken(r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := v.Parse(tok)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok || claims.Role != role {
				http.Error(w, ErrForbidden.Error(), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
