package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrDatabase, Message: "query failed", Err: errors.New("connection lost")},
			want:     "[DATABASE_ERROR] query failed: connection lost",
		},
		{
			name:     "not found error",
			appError: &AppError{Code: ErrNotFound, Message: "task not found"},
			want:     "[NOT_FOUND] task not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appError.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("underlying")

	err := Wrap(ErrNetwork, "request failed", underlying)
	if err.Code != ErrNetwork {
		t.Errorf("Wrap() code = %q, want %q", err.Code, ErrNetwork)
	}
	if !errors.Is(err, underlying) {
		t.Error("Wrap() should keep the underlying error reachable")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrValidation, "progress %d out of range", 140)
	if err.Message != "progress 140 out of range" {
		t.Errorf("Newf() message = %q", err.Message)
	}
}

// TestIs verifies code matching through wrapping.
func TestIs(t *testing.T) {
	inner := New(ErrConstraint, "duplicate instance")
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching AppError", New(ErrNotFound, "not found"), ErrNotFound, true},
		{"non-matching AppError", New(ErrNotFound, "not found"), ErrInternal, false},
		{"non-AppError", errors.New("standard error"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
		{"fmt wrapped", fmt.Errorf("context: %w", New(ErrSyncInProgress, "busy")), ErrSyncInProgress, true},
		{"nested AppError", Wrap(ErrDatabase, "insert failed", inner), ErrConstraint, true},
		{"outer of nested", Wrap(ErrDatabase, "insert failed", inner), ErrDatabase, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", New(ErrServerRejected, "500"))); got != ErrServerRejected {
		t.Errorf("CodeOf() = %q, want %q", got, ErrServerRejected)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf() = %q, want %q", got, ErrInternal)
	}
}

// TestErrorCodes_areUnique verifies all error codes are unique and upper case.
func TestErrorCodes_areUnique(t *testing.T) {
	codes := []ErrorCode{
		ErrInternal, ErrNotInitialized, ErrNotFound, ErrValidation,
		ErrDatabase, ErrMigration, ErrConstraint,
		ErrNetwork, ErrServerRejected, ErrConflictLost, ErrSyncInProgress, ErrSyncFailed,
		ErrCryptoFailed,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("ErrorCode %q is duplicated", code)
		}
		seen[code] = true
		if string(code) != strings.ToUpper(string(code)) {
			t.Errorf("ErrorCode %q should be uppercase", code)
		}
	}
}
