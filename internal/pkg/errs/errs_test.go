package errs

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewErrorKnownCode(t *testing.T) {
	customErr := NewError(ErrUnauthorized)
	if customErr.Code != ErrUnauthorized {
		t.Fatalf("code = %d, want %d", customErr.Code, ErrUnauthorized)
	}
	if customErr.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", customErr.Status)
	}
	if customErr.Message == "" {
		t.Fatal("empty message")
	}
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	customErr := NewError(99999)
	if customErr.Code != ErrUnknown {
		t.Fatalf("code = %d, want %d", customErr.Code, ErrUnknown)
	}
}

func TestNewErrorDefaultsStatusOK(t *testing.T) {
	// Codes only surfaced over the WebSocket carry no HTTP status in the map.
	customErr := NewError(ErrMessageEmpty)
	if customErr.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200 default", customErr.Status)
	}
}

func TestFromPassesCustomErrorThrough(t *testing.T) {
	original := NewError(ErrMessageContentTooLong)
	got := From(original, ErrUnknown)
	if got != original {
		t.Fatalf("From() = %+v, want the original error unchanged", got)
	}
}

func TestFromWrapsPlainError(t *testing.T) {
	got := From(errors.New("pgx: connection refused"), ErrStoreFailure)
	if got.Code != ErrStoreFailure {
		t.Fatalf("code = %d, want %d", got.Code, ErrStoreFailure)
	}
}
