package credentials

import (
	"errors"
	"testing"

	"rentwheels/internal/apierr"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Abcdef", true},
		{"Abc", false},
		{"abcdef", false},
		{"ABCDEF", false},
		{"Pässwört", true},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tc.password, err)
		}
		if !tc.ok && !errors.Is(err, apierr.ErrValidation) {
			t.Errorf("%q: expected validation error, got %v", tc.password, err)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("renter@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "renter", "renter@", "@example.com"} {
		if err := ValidateEmail(bad); !errors.Is(err, apierr.ErrValidation) {
			t.Errorf("%q: expected validation error, got %v", bad, err)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Renter@Example.COM "); got != "renter@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}
