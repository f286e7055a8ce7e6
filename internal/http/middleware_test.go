package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
	"rentwheels/internal/identity"
	"rentwheels/internal/metrics"
	"rentwheels/internal/users"
)

type authenticatorStub struct {
	authenticate func(ctx context.Context, token string) (identity.Account, error)
}

func (s authenticatorStub) Authenticate(ctx context.Context, token string) (identity.Account, error) {
	if s.authenticate != nil {
		return s.authenticate(ctx, token)
	}
	return identity.Account{}, apierr.ErrUnauthenticated
}

type roleSourceStub struct {
	roleOf func(ctx context.Context, email string) (users.Role, error)
}

func (s roleSourceStub) RoleOf(ctx context.Context, email string) (users.Role, error) {
	if s.roleOf != nil {
		return s.roleOf(ctx, email)
	}
	return users.RoleUser, nil
}

type limiterStub struct {
	allow bool
	keys  []string
}

func (l *limiterStub) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

func (l *limiterStub) RetryAfter() time.Duration { return 3 * time.Second }

type recorderStub struct {
	metrics.Nop
	routes      []string
	rateLimited int
}

func (r *recorderStub) RecordRequest(_ string, route string, _ int, _ time.Duration) {
	r.routes = append(r.routes, route)
}

func (r *recorderStub) RecordRateLimited(string) { r.rateLimited++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withCaller(req *http.Request, caller *Caller) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), callerContextKey, caller))
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	next := newAuthMiddleware(authenticatorStub{}, roleSourceStub{}, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/my-cars", nil)
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected bearer challenge, got %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	next := newAuthMiddleware(authenticatorStub{}, roleSourceStub{}, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/my-cars", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareInjectsCallerWithRole(t *testing.T) {
	accountID := uuid.New()
	auth := authenticatorStub{authenticate: func(ctx context.Context, token string) (identity.Account, error) {
		if token != "good" {
			return identity.Account{}, apierr.ErrUnauthenticated
		}
		return identity.Account{ID: accountID, Email: "ops@example.com", DisplayName: "Ops"}, nil
	}}
	roles := roleSourceStub{roleOf: func(ctx context.Context, email string) (users.Role, error) {
		return users.RoleAdmin, nil
	}}

	var got *Caller
	next := newAuthMiddleware(auth, roles, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || got.AccountID != accountID || !got.IsAdmin() || got.Token != "good" {
		t.Fatalf("unexpected caller %+v", got)
	}
}

func TestAuthMiddlewareFallsBackToUserRoleOnLookupError(t *testing.T) {
	auth := authenticatorStub{authenticate: func(ctx context.Context, token string) (identity.Account, error) {
		return identity.Account{ID: uuid.New(), Email: "a@example.com"}, nil
	}}
	roles := roleSourceStub{roleOf: func(ctx context.Context, email string) (users.Role, error) {
		return "", errors.New("db down")
	}}

	var got *Caller
	next := newAuthMiddleware(auth, roles, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/my-bookings", nil)
	req.Header.Set("Authorization", "Bearer t")
	next.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.Role != users.RoleUser {
		t.Fatalf("expected user role fallback, got %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := requireAdmin(okHandler())

	req := withCaller(httptest.NewRequest(http.MethodGet, "/users", nil), &Caller{Email: "a@example.com", Role: users.RoleUser})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	req = withCaller(httptest.NewRequest(http.MethodGet, "/users", nil), &Caller{Email: "b@example.com", Role: users.RoleAdmin})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareRejectsWithRetryAfter(t *testing.T) {
	limiter := &limiterStub{allow: false}
	recorder := &recorderStub{}
	handler := newRateLimitMiddleware(limiter, recorder, discardLogger())(okHandler())

	req := withCaller(httptest.NewRequest(http.MethodPost, "/bookings", nil), &Caller{Email: "a@example.com"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3" {
		t.Fatalf("expected Retry-After 3, got %q", rec.Header().Get("Retry-After"))
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "a@example.com" {
		t.Fatalf("expected limiter keyed by email, got %v", limiter.keys)
	}
	if recorder.rateLimited != 1 {
		t.Fatalf("expected rate limit to be recorded, got %d", recorder.rateLimited)
	}
}

func TestRateLimitMiddlewareAllows(t *testing.T) {
	handler := newRateLimitMiddleware(&limiterStub{allow: true}, metrics.Nop{}, discardLogger())(okHandler())

	req := withCaller(httptest.NewRequest(http.MethodPost, "/bookings", nil), &Caller{Email: "a@example.com"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := newSecurityHeadersMiddleware("production")(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected nosniff header")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS outside development")
	}

	handler = newSecurityHeadersMiddleware("development")(okHandler())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected no HSTS in development")
	}
}
