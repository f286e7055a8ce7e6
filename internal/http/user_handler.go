package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rentwheels/internal/apierr"
	"rentwheels/internal/users"
)

// UserHandler exposes the backend user records that carry roles.
type UserHandler struct {
	service *users.Service
	logger  *slog.Logger
}

// NewUserHandler creates a handler.
func NewUserHandler(service *users.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// Upsert creates the caller's record with the default role or refreshes its
// profile. The role is never taken from the request.
func (h *UserHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	var payload struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		PhotoURL string `json:"photoURL"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	email := users.NormalizeEmail(payload.Email)
	if email == "" {
		email = caller.Email
	}
	if email != caller.Email && !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, apierr.CodeAuthorizationDenied, "cannot modify another user's record")
		return
	}

	user, created, err := h.service.Upsert(r.Context(), users.UpsertInput{
		Email:    email,
		Name:     payload.Name,
		PhotoURL: payload.PhotoURL,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, user)
}

// Get returns a user record. Callers may read their own record; admins may read any.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	email := users.NormalizeEmail(chi.URLParam(r, "email"))
	if email != caller.Email && !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, apierr.CodeAuthorizationDenied, "cannot read another user's record")
		return
	}

	user, err := h.service.GetByEmail(r.Context(), email)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// List returns every user record. Admin only.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpdateRole assigns a role. Admin only.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role string `json:"role"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "email"), users.Role(payload.Role))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
