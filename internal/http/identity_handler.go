package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rentwheels/internal/apierr"
	"rentwheels/internal/identity"
	"rentwheels/internal/metrics"
)

// IdentityHandler exposes the identity-provider endpoints.
type IdentityHandler struct {
	service *identity.Service
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewIdentityHandler creates a handler.
func NewIdentityHandler(service *identity.Service, recorder metrics.Recorder, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{service: service, metrics: recorder, logger: logger}
}

type accountResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Provider    string `json:"provider"`
}

func newAccountResponse(account identity.Account) accountResponse {
	return accountResponse{
		UID:         account.ID.String(),
		Email:       account.Email,
		DisplayName: account.DisplayName,
		PhotoURL:    account.AvatarURL,
		Provider:    account.Provider,
	}
}

type sessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   accountResponse `json:"account"`
}

// SignUp registers an email/password account and signs it in.
func (h *IdentityHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoURL"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	account, err := h.service.SignUp(r.Context(), identity.SignUpInput{
		Email:       payload.Email,
		Password:    payload.Password,
		DisplayName: payload.DisplayName,
		AvatarURL:   payload.PhotoURL,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.issue(w, r, account, http.StatusCreated)
}

// SignIn exchanges an email/password pair for a token.
func (h *IdentityHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	account, err := h.service.SignIn(r.Context(), payload.Email, payload.Password)
	h.metrics.RecordSignIn(identity.ProviderPassword, signInOutcome(err))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.issue(w, r, account, http.StatusOK)
}

// Federated exchanges a Google ID token for a token.
func (h *IdentityHandler) Federated(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider string `json:"provider"`
		IDToken  string `json:"idToken"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if payload.Provider != "" && payload.Provider != identity.ProviderGoogle {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "unsupported provider")
		return
	}
	if !h.service.GoogleEnabled() {
		writeError(w, http.StatusNotFound, apierr.CodeNotFound, "google sign-in is not configured")
		return
	}

	account, err := h.service.SignInWithGoogle(r.Context(), payload.IDToken)
	h.metrics.RecordSignIn(identity.ProviderGoogle, signInOutcome(err))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.issue(w, r, account, http.StatusOK)
}

// Me returns the account behind the bearer token.
func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	account, err := h.service.Account(r.Context(), caller.AccountID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

// UpdateMe changes the display name and avatar of the caller.
func (h *IdentityHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	var payload struct {
		DisplayName *string `json:"displayName"`
		PhotoURL    *string `json:"photoURL"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), caller.AccountID, identity.ProfileInput{
		DisplayName: payload.DisplayName,
		AvatarURL:   payload.PhotoURL,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

// SignOut revokes the bearer token. It succeeds for unknown tokens.
func (h *IdentityHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context(), bearerToken(r)); err != nil {
		h.logger.Error("sign out", "error", err)
		writeError(w, http.StatusInternalServerError, apierr.CodeServer, "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IdentityHandler) issue(w http.ResponseWriter, r *http.Request, account identity.Account, status int) {
	issued, err := h.service.IssueToken(r.Context(), account, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, apierr.CodeServer, "failed to create session")
		return
	}
	writeJSON(w, status, sessionResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Account:   newAccountResponse(issued.Account),
	})
}

func signInOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apierr.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, apierr.ErrInvalidCredentials), errors.Is(err, apierr.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}
