package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentwheels/internal/apierr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(server.URL + "/")
	require.NoError(t, err)
	return c
}

func TestNewRejectsNonHTTPURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
}

func TestCreateBookingSendsTokenAndPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bookings", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "car-1", payload["carId"])
		assert.Equal(t, "rider@example.com", payload["email"])
		assert.Equal(t, "pending", payload["status"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"b-1","carId":"car-1","email":"rider@example.com","status":"pending"}`))
	})

	booking, err := c.CreateBooking(context.Background(), "tok", NewBooking{CarID: "car-1", Email: "rider@example.com", Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, "b-1", booking.ID)
}

func TestErrorsDecodeToSentinels(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"already booked", http.StatusConflict, `{"error":"car is booked","code":"already_booked"}`, apierr.ErrAlreadyBooked},
		{"self booking", http.StatusForbidden, `{"error":"own car","code":"self_booking_denied"}`, apierr.ErrSelfBookingDenied},
		{"email in use", http.StatusConflict, `{"error":"taken","code":"email_in_use"}`, apierr.ErrEmailInUse},
		{"bare server error", http.StatusBadGateway, `<html>bad gateway</html>`, apierr.ErrServer},
		{"bare not found", http.StatusNotFound, ``, apierr.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.GetCar(context.Background(), "car-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "expected %v, got %v", tc.want, err)

			var apiErr *apierr.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.ListCars(context.Background(), CarQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrNetwork)
}

func TestListCarsEncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SUV", r.URL.Query().Get("category"))
		assert.Equal(t, "price_asc", r.URL.Query().Get("sort"))
		assert.Equal(t, "6", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[{"_id":"c1","status":"Available"}]`))
	})

	list, err := c.ListCars(context.Background(), CarQuery{Category: "SUV", Sort: "price_asc", Limit: 6})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Available", list[0].Status)
}

func TestSignOutAcceptsNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/identity/sessions/current", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SignOut(context.Background(), "tok"))
}

func TestSetRoleEscapesEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/a+b@example.com/role", r.URL.Path)
		_, _ = w.Write([]byte(`{"email":"a+b@example.com","role":"admin"}`))
	})

	user, err := c.SetRole(context.Background(), "tok", "a+b@example.com", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)
}

func TestImportCarsSendsCSVBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cars/import", r.URL.Path)
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		assert.Equal(t, "other@example.com", r.URL.Query().Get("providerEmail"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "name,category\n", string(raw))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalRows":3,"imported":2,"failed":[{"row":4,"name":"Broken","error":"pricePerDay must be a number"}]}`))
	})

	summary, err := c.ImportCars(context.Background(), "tok", "other@example.com", strings.NewReader("name,category\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 4, summary.Failed[0].Row)
}

func TestExportBookingsStreamsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bookings/export", r.URL.Path)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("schemaVersion,bookingId\n1,b-1\n"))
	})

	var buf bytes.Buffer
	require.NoError(t, c.ExportBookings(context.Background(), "tok", &buf))
	assert.Equal(t, "schemaVersion,bookingId\n1,b-1\n", buf.String())
}

func TestExportBookingsForbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"admin role required","code":"authorization_denied"}`))
	})

	var buf bytes.Buffer
	err := c.ExportBookings(context.Background(), "tok", &buf)
	require.ErrorIs(t, err, apierr.ErrAuthorizationDenied)
	assert.Zero(t, buf.Len())
}
