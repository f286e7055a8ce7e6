package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorUnwrapsToSentinelByCode(t *testing.T) {
	err := &Error{Status: http.StatusConflict, Code: CodeAlreadyBooked, Message: "car c1 is booked"}
	if !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
	if errors.Is(err, ErrEmailInUse) {
		t.Fatal("conflict code must not match email in use")
	}
}

func TestErrorFallsBackToStatus(t *testing.T) {
	cases := map[int]error{
		http.StatusBadGateway:   ErrServer,
		http.StatusUnauthorized: ErrUnauthenticated,
		http.StatusNotFound:     ErrNotFound,
		http.StatusBadRequest:   ErrValidation,
	}
	for status, want := range cases {
		err := &Error{Status: status}
		if !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v", status, want)
		}
	}
}

func TestClassifyWrappedSentinel(t *testing.T) {
	status, code := Classify(fmt.Errorf("create booking: %w", ErrSelfBookingDenied))
	if status != http.StatusForbidden || code != CodeSelfBookingDenied {
		t.Fatalf("unexpected classification %d %s", status, code)
	}

	status, code = Classify(errors.New("boom"))
	if status != http.StatusInternalServerError || code != CodeServer {
		t.Fatalf("unexpected classification for unknown error %d %s", status, code)
	}
}

func TestValidationHelper(t *testing.T) {
	err := Validation("price must be positive, got %d", -1)
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected validation sentinel")
	}
	if err.Error() != "price must be positive, got -1" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
