package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rentwheels/internal/apierr"
)

func TestDecodeJSONBody_AllowsPayloadWithinLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/cars", strings.NewReader(`{"name":"Civic"}`))
	rec := httptest.NewRecorder()

	var dst map[string]string
	if err := decodeJSONBody(rec, req, &dst); err != nil {
		t.Fatalf("decodeJSONBody returned error: %v", err)
	}
	if dst["name"] != "Civic" {
		t.Fatalf("expected key to be decoded, got %v", dst)
	}
}

func TestDecodeJSONBody_RejectsPayloadExceedingLimit(t *testing.T) {
	var b strings.Builder
	b.Grow(int(maxJSONBodyBytes) + 32)
	b.WriteString(`{"data":"`)
	for i := int64(0); i < maxJSONBodyBytes; i++ {
		b.WriteByte('a')
	}
	b.WriteString(`"}`)

	req := httptest.NewRequest(http.MethodPost, "/cars", strings.NewReader(b.String()))
	rec := httptest.NewRecorder()

	var dst map[string]string
	err := decodeJSONBody(rec, req, &dst)
	if err == nil {
		t.Fatal("expected error for oversized payload")
	}
	if !errors.Is(err, errPayloadTooLarge) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeJSONBody_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"email":"a@example.com","role":"admin"}`))
	rec := httptest.NewRecorder()

	var dst struct {
		Email string `json:"email"`
	}
	if err := decodeJSONBody(rec, req, &dst); err == nil {
		t.Fatal("expected unknown role field to be rejected")
	}
}

func TestWriteServiceErrorHidesServerErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: connection refused"), discardLogger())

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "unexpected error" || body.Code != apierr.CodeServer {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestWriteServiceErrorMapsSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, fmt.Errorf("book car: %w", apierr.ErrAlreadyBooked), discardLogger())

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != apierr.CodeAlreadyBooked {
		t.Fatalf("unexpected code %q", body.Code)
	}
}
