package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"rentwheels/internal/apierr"
	"rentwheels/internal/cars"
	"rentwheels/internal/importer"
)

const maxCSVUploadBytes int64 = 2 << 20

// CarHandler exposes car listing endpoints.
type CarHandler struct {
	service  *cars.Service
	importer *importer.CSVImporter
	logger   *slog.Logger
}

// NewCarHandler creates a handler.
func NewCarHandler(service *cars.Service, importer *importer.CSVImporter, logger *slog.Logger) *CarHandler {
	return &CarHandler{service: service, importer: importer, logger: logger}
}

// List returns listings, optionally filtered and sorted.
func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseCarListOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, err.Error())
		return
	}

	list, err := h.service.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func parseCarListOptions(values url.Values) (cars.ListOptions, error) {
	opts := cars.ListOptions{}
	const maxListLimit = 100
	const maxSearchQueryLength = 200

	if raw := strings.TrimSpace(values.Get("category")); raw != "" {
		category := cars.Category(raw)
		if !category.Valid() {
			return cars.ListOptions{}, fmt.Errorf("invalid category filter")
		}
		opts.Category = &category
	}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status := cars.Status(raw)
		if !status.Valid() {
			return cars.ListOptions{}, fmt.Errorf("invalid status filter")
		}
		opts.Status = &status
	}

	if raw := strings.TrimSpace(values.Get("q")); raw != "" {
		if len(raw) > maxSearchQueryLength {
			return cars.ListOptions{}, fmt.Errorf("query too long (max %d characters)", maxSearchQueryLength)
		}
		opts.Query = &raw
	}

	if raw := strings.TrimSpace(values.Get("sort")); raw != "" {
		sort := cars.SortOrder(raw)
		switch sort {
		case cars.SortNewest, cars.SortPriceAsc, cars.SortPriceDesc:
			opts.Sort = sort
		default:
			return cars.ListOptions{}, fmt.Errorf("invalid sort")
		}
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > maxListLimit {
			return cars.ListOptions{}, fmt.Errorf("invalid limit filter")
		}
		opts.Limit = &value
	}

	return opts, nil
}

// Get returns one listing.
func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	car, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

// Create publishes a listing owned by the caller.
func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	var payload struct {
		Name        string   `json:"name"`
		Model       string   `json:"model"`
		Category    string   `json:"category"`
		PricePerDay float64  `json:"pricePerDay"`
		Location    string   `json:"location"`
		Image       string   `json:"image"`
		Description string   `json:"description"`
		Features    []string `json:"features"`

		ProviderName  string `json:"providerName"`
		ProviderEmail string `json:"providerEmail"`
		Status        string `json:"status"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	if payload.Status != "" && cars.Status(payload.Status) != cars.StatusAvailable {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "new listings must be Available")
		return
	}
	providerEmail := caller.Email
	if email := strings.ToLower(strings.TrimSpace(payload.ProviderEmail)); email != "" && email != caller.Email {
		if !caller.IsAdmin() {
			writeError(w, http.StatusForbidden, apierr.CodeAuthorizationDenied, "cannot publish a listing for another provider")
			return
		}
		providerEmail = email
	}
	providerName := caller.DisplayName
	if name := strings.TrimSpace(payload.ProviderName); name != "" {
		providerName = name
	}

	car, err := h.service.Create(r.Context(), cars.CreateCarInput{
		Name:          payload.Name,
		Model:         payload.Model,
		Category:      cars.Category(payload.Category),
		PricePerDay:   payload.PricePerDay,
		Location:      payload.Location,
		Image:         payload.Image,
		Description:   payload.Description,
		Features:      payload.Features,
		ProviderName:  providerName,
		ProviderEmail: providerEmail,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, car)
}

// Update edits a listing owned by the caller, or any listing for admins.
func (h *CarHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Name        *string   `json:"name"`
		Model       *string   `json:"model"`
		Category    *string   `json:"category"`
		PricePerDay *float64  `json:"pricePerDay"`
		Location    *string   `json:"location"`
		Image       *string   `json:"image"`
		Description *string   `json:"description"`
		Features    *[]string `json:"features"`
		Status      *string   `json:"status"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	input := cars.UpdateCarInput{
		Name:        payload.Name,
		Model:       payload.Model,
		PricePerDay: payload.PricePerDay,
		Location:    payload.Location,
		Image:       payload.Image,
		Description: payload.Description,
		Features:    payload.Features,
	}
	if payload.Category != nil {
		category := cars.Category(*payload.Category)
		input.Category = &category
	}
	if payload.Status != nil {
		status := cars.Status(*payload.Status)
		input.Status = &status
	}

	car, err := h.service.Update(r.Context(), actorOf(caller), id, input)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

// Delete removes a listing owned by the caller, or any listing for admins.
func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actorOf(caller), id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMine returns listings published by providerEmail, which defaults to the caller.
func (h *CarHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("providerEmail")))
	if email == "" {
		email = caller.Email
	}
	if email != caller.Email && !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, apierr.CodeAuthorizationDenied, "cannot list another provider's cars")
		return
	}

	list, err := h.service.ListByProvider(r.Context(), email)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Import publishes listings from a CSV upload, sent either as the multipart
// field "file" or as a text/csv body. Admins may import for another provider
// with ?providerEmail=.
func (h *CarHandler) Import(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}
	if h.importer == nil {
		writeError(w, http.StatusNotImplemented, apierr.CodeServer, "CSV import is not available")
		return
	}

	provider := importer.Provider{Name: caller.DisplayName, Email: caller.Email}
	if email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("providerEmail"))); email != "" && email != caller.Email {
		if !caller.IsAdmin() {
			writeError(w, http.StatusForbidden, apierr.CodeAuthorizationDenied, "cannot import listings for another provider")
			return
		}
		provider = importer.Provider{Email: email}
	}

	body, cleanup, ok := csvUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	summary, err := h.importer.Import(r.Context(), body, provider)
	if err != nil {
		if errors.Is(err, importer.ErrInvalidCSV) {
			writeError(w, http.StatusBadRequest, apierr.CodeValidation, err.Error())
			return
		}
		h.logger.Error("csv import failed", "provider", provider.Email, "error", err)
		writeError(w, http.StatusInternalServerError, apierr.CodeServer, "bulk import failed")
		return
	}

	h.logger.Info("cars imported", "provider", provider.Email, "imported", summary.Imported, "rows", summary.TotalRows)
	writeJSON(w, http.StatusOK, summary)
}

func csvUpload(w http.ResponseWriter, r *http.Request) (io.Reader, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		return r.Body, func() { _ = r.Body.Close() }, true
	}
	if mediaType != "multipart/form-data" {
		writeError(w, http.StatusUnsupportedMediaType, apierr.CodeValidation, "upload a multipart file or a text/csv body")
		return nil, nil, false
	}

	if err := r.ParseMultipartForm(maxCSVUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, apierr.CodeValidation, fmt.Sprintf("CSV upload is too large (max %d bytes)", maxErr.Limit))
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "invalid CSV upload")
		return nil, nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "CSV file is required")
		return nil, nil, false
	}
	return file, func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}, true
}

func actorOf(caller *Caller) cars.Actor {
	return cars.Actor{Email: caller.Email, Admin: caller.IsAdmin()}
}
