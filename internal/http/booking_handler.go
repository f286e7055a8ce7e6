package http

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
	"rentwheels/internal/bookings"
	"rentwheels/internal/exporter"
	"rentwheels/internal/metrics"
)

const exportPageSize = 100

// BookingHandler exposes booking endpoints.
type BookingHandler struct {
	service  *bookings.Service
	exporter *exporter.CSVExporter
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewBookingHandler creates a handler.
func NewBookingHandler(service *bookings.Service, exporter *exporter.CSVExporter, recorder metrics.Recorder, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, exporter: exporter, metrics: recorder, logger: logger}
}

// Create books a car for the caller.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	var payload struct {
		CarID     string     `json:"carId"`
		Email     string     `json:"email"`
		StartDate *time.Time `json:"startingDate"`
		EndDate   *time.Time `json:"endDate"`
		Comment   string     `json:"comment"`
		Status    string     `json:"status"`

		// Denormalized car fields sent by clients. The stored copy is always
		// taken from the car record.
		CarName   string  `json:"carName"`
		Category  string  `json:"category"`
		RentPrice float64 `json:"rentPrice"`
		Image     string  `json:"image"`
		Location  string  `json:"location"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if payload.Status != "" && payload.Status != bookings.StatusPending {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "status must be pending")
		return
	}
	carID, err := uuid.Parse(payload.CarID)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "invalid carId")
		return
	}

	booking, err := h.service.Create(r.Context(), requesterOf(caller), bookings.CreateBookingInput{
		CarID:     carID,
		Email:     payload.Email,
		StartDate: payload.StartDate,
		EndDate:   payload.EndDate,
		Comment:   payload.Comment,
	})
	h.metrics.RecordBooking(bookingOutcome(err))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListMine returns the bookings of email, which defaults to the caller.
func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}

	list, err := h.service.ListByEmail(r.Context(), requesterOf(caller), r.URL.Query().Get("email"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListAll returns one page of every booking. Admin only.
func (h *BookingHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "invalid page")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "invalid limit")
		return
	}

	result, err := h.service.ListAll(r.Context(), page, limit)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Export streams every booking as CSV. Admin only.
func (h *BookingHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotImplemented, apierr.CodeServer, "CSV export is not available")
		return
	}

	first, err := h.service.ListAll(r.Context(), 1, exportPageSize)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	filename := fmt.Sprintf("bookings-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	if err := h.exporter.WriteHeader(writer); err != nil {
		h.logger.Error("csv export failed", "error", err)
		return
	}
	if err := h.exporter.WriteRows(writer, first.Bookings); err != nil {
		h.logger.Error("csv export failed", "error", err)
		return
	}
	// Headers are already sent, so later failures can only be logged.
	for page := 2; page <= first.TotalPages; page++ {
		next, err := h.service.ListAll(r.Context(), page, exportPageSize)
		if err != nil {
			h.logger.Error("csv export aborted", "page", page, "error", err)
			return
		}
		if err := h.exporter.WriteRows(writer, next.Bookings); err != nil {
			h.logger.Error("csv export failed", "error", err)
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Error("csv export flush failed", "error", err)
	}
}

// Cancel removes a booking and releases its car.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if caller == nil {
		unauthorized(w)
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), requesterOf(caller), id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.metrics.RecordBooking("cancelled")
	w.WriteHeader(http.StatusNoContent)
}

func requesterOf(caller *Caller) bookings.Requester {
	return bookings.Requester{Email: caller.Email, Admin: caller.IsAdmin()}
}

func parsePositiveInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return value, nil
}

func bookingOutcome(err error) string {
	if err == nil {
		return "created"
	}
	_, code := apierr.Classify(err)
	return string(code)
}
