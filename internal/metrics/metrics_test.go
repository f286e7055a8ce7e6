package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest(http.MethodGet, "/cars", http.StatusOK, 20*time.Millisecond)
	c.RecordRequest(http.MethodGet, "/cars", http.StatusOK, 10*time.Millisecond)
	c.RecordRequest(http.MethodPost, "/bookings", http.StatusConflict, time.Millisecond)

	if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodGet, "/cars", "200")); got != 2 {
		t.Fatalf("expected 2 GET /cars requests, got %v", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodPost, "/bookings", "409")); got != 1 {
		t.Fatalf("expected 1 conflicting booking request, got %v", got)
	}
}

func TestCollectorRecordsDomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBooking("created")
	c.RecordBooking("already_booked")
	c.RecordBooking("already_booked")
	c.RecordSignIn("password", "success")
	c.RecordRateLimited("api")

	if got := testutil.ToFloat64(c.bookings.WithLabelValues("already_booked")); got != 2 {
		t.Fatalf("expected 2 already_booked, got %v", got)
	}
	if got := testutil.ToFloat64(c.signIns.WithLabelValues("password", "success")); got != 1 {
		t.Fatalf("expected 1 sign-in, got %v", got)
	}
	if got := testutil.ToFloat64(c.rateLimited.WithLabelValues("api")); got != 1 {
		t.Fatalf("expected 1 rate limited request, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordBooking("created")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "rentwheels_bookings_total") {
		t.Fatal("response should contain rentwheels_bookings_total")
	}
}

func TestNopSatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	r.RecordBooking("created")
}
