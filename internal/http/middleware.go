package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rentwheels/internal/apierr"
	"rentwheels/internal/identity"
	"rentwheels/internal/metrics"
	"rentwheels/internal/users"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", duration.String())
		})
	}
}

// newMetricsMiddleware records every request under its chi route pattern so
// that path parameters do not explode label cardinality.
func newMetricsMiddleware(recorder metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			recorder.RecordRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}

// Caller is the authenticated principal of a request. Role is read from the
// users repository on every request, never from the token.
type Caller struct {
	AccountID   uuid.UUID
	Email       string
	DisplayName string
	AvatarURL   string
	Role        users.Role
	Token       string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == users.RoleAdmin
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const callerContextKey contextKey = "caller"

// CallerFromContext extracts the authenticated caller from the request context.
// Returns nil if the auth middleware hasn't populated the context.
func CallerFromContext(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerContextKey).(*Caller)
	return caller
}

type tokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Account, error)
}

type roleSource interface {
	RoleOf(ctx context.Context, email string) (users.Role, error)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func newAuthMiddleware(authenticator tokenAuthenticator, roles roleSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, apierr.ErrUnauthenticated) {
					logger.Error("token validation error", "error", err)
				}
				unauthorized(w)
				return
			}

			role, err := roles.RoleOf(r.Context(), account.Email)
			if err != nil {
				logger.Warn("role lookup failed; using default role", "email", account.Email, "error", err)
				role = users.RoleUser
			}

			caller := &Caller{
				AccountID:   account.ID,
				Email:       account.Email,
				DisplayName: account.DisplayName,
				AvatarURL:   account.AvatarURL,
				Role:        role,
				Token:       token,
			}
			ctx := context.WithValue(r.Context(), callerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFromContext(r.Context())
		if caller == nil {
			unauthorized(w)
			return
		}
		if !caller.IsAdmin() {
			writeError(w, http.StatusForbidden, apierr.CodeAuthorizationDenied, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type keyedLimiter interface {
	Allow(key string) bool
	RetryAfter() time.Duration
}

// newRateLimitMiddleware throttles authenticated callers by email. It must run
// after the auth middleware.
func newRateLimitMiddleware(limiter keyedLimiter, recorder metrics.Recorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			if caller == nil {
				unauthorized(w)
				return
			}

			if !limiter.Allow(caller.Email) {
				recorder.RecordRateLimited("api")
				logger.Warn("rate limit exceeded", "email", caller.Email, "path", r.URL.Path)
				retryAfter := int(limiter.RetryAfter().Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, apierr.CodeRateLimited, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, apierr.CodeUnauthenticated, "authentication required")
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
