package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("gemini")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WrappedStillClassified(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrFetchStatus, "status 404")
	wrapped := fmt.Errorf("fetch image: %w", inner)

	if !IsErrorCode(wrapped, ErrFetchStatus) {
		t.Fatalf("expected wrapped error to keep code %s", ErrFetchStatus)
	}
	if IsRetryable(wrapped) {
		t.Fatalf("expected non-retryable")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for plain errors")
	}
}
