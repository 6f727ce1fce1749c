package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/goleak"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokens(t *testing.T) *ServiceTokens {
	t.Helper()
	tokens, err := NewServiceTokens(testSecret, "")
	if err != nil {
		t.Fatalf("NewServiceTokens failed: %v", err)
	}
	return tokens
}

func TestServiceTokens(t *testing.T) {
	tokens := newTestTokens(t)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		raw, err := tokens.Issue("ci-bot", []string{"editor"}, time.Hour)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}

		claims, err := tokens.Verify(ctx, "Bearer "+raw)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if claims.Subject != "ci-bot" || !claims.HasRole("editor") {
			t.Errorf("unexpected claims %+v", claims)
		}
		if claims.Source != SourceService || claims.Issuer != DefaultServiceIssuer {
			t.Errorf("unexpected source/issuer %q/%q", claims.Source, claims.Issuer)
		}
		if claims.IsExpired() {
			t.Error("fresh token should not be expired")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		past := newTestTokens(t)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		raw, err := past.Issue("ci-bot", nil, time.Hour)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := tokens.Verify(ctx, raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewServiceTokens(strings.Repeat("x", 32), "")
		raw, _ := other.Issue("ci-bot", nil, time.Hour)
		if _, err := tokens.Verify(ctx, raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, _ := NewServiceTokens(testSecret, "someone-else")
		raw, _ := other.Issue("ci-bot", nil, time.Hour)
		if _, err := tokens.Verify(ctx, raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    DefaultServiceIssuer,
			Subject:   "ci-bot",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		if _, err := tokens.Verify(ctx, raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("issue validation", func(t *testing.T) {
		if _, err := tokens.Issue("", nil, time.Hour); err == nil {
			t.Error("expected error for empty subject")
		}
		if _, err := tokens.Issue("x", nil, 0); err == nil {
			t.Error("expected error for zero ttl")
		}
	})

	t.Run("short secret", func(t *testing.T) {
		if _, err := NewServiceTokens("short", ""); err == nil {
			t.Error("expected error for short secret")
		}
	})
}

type staticVerifier struct {
	claims *Claims
	err    error
}

func (s staticVerifier) Verify(context.Context, string) (*Claims, error) {
	return s.claims, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	reject := staticVerifier{err: ErrInvalidToken}
	accept := staticVerifier{claims: &Claims{Subject: "u1"}}

	if c, err := (Chain{reject, accept}).Verify(ctx, "tok"); err != nil || c.Subject != "u1" {
		t.Errorf("expected second verifier to accept, got %v %v", c, err)
	}
	if _, err := (Chain{reject, reject}).Verify(ctx, "tok"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := (Chain{}).Verify(ctx, "tok"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty chain, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	tokens := newTestTokens(t)
	editor, _ := tokens.Issue("alice", []string{"editor"}, time.Hour)
	viewer, _ := tokens.Issue("bob", []string{"viewer"}, time.Hour)

	mw := NewMiddleware(tokens, &MiddlewareConfig{Enabled: true, RequiredRoles: []string{"editor"}})

	var seen *Claims
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantSub    string
	}{
		{"public path", "/health", "", http.StatusOK, ""},
		{"missing header", "/api/v1/workflows", "", http.StatusUnauthorized, ""},
		{"not bearer", "/api/v1/workflows", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage token", "/api/v1/workflows", "Bearer nope", http.StatusUnauthorized, ""},
		{"missing role", "/api/v1/workflows", "Bearer " + viewer, http.StatusForbidden, ""},
		{"valid token", "/api/v1/workflows", "Bearer " + editor, http.StatusOK, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
			if tt.wantSub != "" && (seen == nil || seen.Subject != tt.wantSub) {
				t.Errorf("expected subject %q in context, got %+v", tt.wantSub, seen)
			}
		})
	}

	t.Run("disabled passes through", func(t *testing.T) {
		off := NewMiddleware(nil, &MiddlewareConfig{Enabled: false})
		rec := httptest.NewRecorder()
		off.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}

func TestClaims(t *testing.T) {
	c := &Claims{Subject: "sub-1", Groups: []string{"ml"}}
	if c.Principal() != "sub-1" {
		t.Errorf("expected subject as principal, got %q", c.Principal())
	}
	c.Email = "a@example.com"
	if c.Principal() != "a@example.com" {
		t.Errorf("expected email as principal, got %q", c.Principal())
	}
	if !c.HasGroup("ml") || c.HasGroup("ops") {
		t.Error("HasGroup mismatch")
	}
	if c.IsExpired() {
		t.Error("zero expiry should never expire")
	}
	c.Expiry = time.Now().Add(-time.Minute).Unix()
	if !c.IsExpired() {
		t.Error("past expiry should be expired")
	}
}

func TestPerIPRateLimiter(t *testing.T) {
	rl := NewPerIPRateLimiter(1, 2)
	now := time.Now()
	rl.now = func() time.Time { return now }

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("1.1.1.1") != http.StatusOK || do("1.1.1.1") != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	if code := do("1.1.1.1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", code)
	}
	if code := do("2.2.2.2"); code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", code)
	}

	if rl.Len() != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", rl.Len())
	}
	now = now.Add(time.Hour)
	if n := rl.evict(); n != 2 || rl.Len() != 0 {
		t.Errorf("expected both clients evicted, got %d (len %d)", n, rl.Len())
	}
}

func TestPerIPRateLimiterRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewPerIPRateLimiter(1, 1)
	rl.idleTTL = time.Millisecond
	rl.Allow("1.1.1.1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for rl.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rl.Len() != 0 {
		t.Error("idle client was not evicted")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "10.0.0.1:1234", "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.8.8"}, "10.0.0.1:1234", "8.8.8.8"},
		{"remote addr", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"ipv6 remote addr", nil, "[::1]:1234", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
