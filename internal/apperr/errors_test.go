package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"no cause", New(NotFound, "login missing"), "NotFound: login missing"},
		{"with cause", Wrap(IoError, "write failed", errors.New("disk full")), "IoError: write failed: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(StoreTransient, "query failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is did not find wrapped cause")
	}
}

func TestIs(t *testing.T) {
	base := New(AuthRejected, "bad token")
	wrapped := fmt.Errorf("dispatch: %w", base)

	if !Is(base, AuthRejected) {
		t.Errorf("Is(base, AuthRejected) = false, want true")
	}
	if Is(base, BadFrame) {
		t.Errorf("Is(base, BadFrame) = true, want false")
	}
	if !Is(wrapped, AuthRejected) {
		t.Errorf("Is(wrapped, AuthRejected) = false, want true")
	}
	if Is(errors.New("plain"), NotFound) {
		t.Errorf("Is(plain error) = true, want false")
	}
}
