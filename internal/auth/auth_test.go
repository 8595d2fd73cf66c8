package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue(secret, "applicant-1", RoleApplicant, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := NewVerifier(secret).Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "applicant-1" || claims.Role != RoleApplicant {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := NewVerifier([]byte("other")).Parse(tok); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}
}

func TestReferralClaims(t *testing.T) {
	tok, err := Issue(secret, "applicant-2", RoleApplicant, time.Hour, time.Now(), WithReferral("LSC01", "Karaikal"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := NewVerifier(secret).Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref := claims.Referral(); ref == nil || ref.Code != "LSC01" || ref.Name != "Karaikal" {
		t.Fatalf("referral = %+v", ref)
	}
	direct := &Claims{}
	if direct.Referral() != nil {
		t.Fatalf("direct signup should have no referral")
	}
}

func TestPeekClaims(t *testing.T) {
	tok, err := Issue([]byte("someone-elses"), "applicant-3", RoleApplicant, time.Hour, time.Now(), WithReferral("LSC07", "Mahe"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := PeekClaims(" " + tok + "\n")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if ref := claims.Referral(); claims.Subject != "applicant-3" || ref == nil || ref.Code != "LSC07" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := PeekClaims("not-a-token"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestStaticToken(t *testing.T) {
	if _, err := StaticToken("").Token(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	expired, _ := Issue(secret, "a", RoleApplicant, time.Minute, time.Now().Add(-time.Hour))
	if _, err := StaticToken(expired).Token(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
	valid, _ := Issue(secret, "a", RoleApplicant, time.Hour, time.Now())
	if got, err := StaticToken(valid).Token(); err != nil || got != valid {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestMiddlewareAndRole(t *testing.T) {
	v := NewVerifier(secret)
	h := Middleware(v)(RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		role   string
		header bool
		want   int
	}{
		{"missing", "", false, http.StatusUnauthorized},
		{"applicant", RoleApplicant, true, http.StatusForbidden},
		{"admin", RoleAdmin, true, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header {
				tok, _ := Issue(secret, "u1", tc.role, time.Hour, time.Now())
				req.Header.Set("Authorization", "Bearer "+tok)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
