package errors

import (
	"fmt"
	"testing"
)

func TestExitCodeFromWrappedError(t *testing.T) {
	base := New(CodeDryRunRejected, "local check failed")
	wrapped := fmt.Errorf("transfer: %w", base)
	if got := ExitCode(wrapped); got != int(CodeDryRunRejected) {
		t.Fatalf("expected exit %d, got %d", CodeDryRunRejected, got)
	}
	if got := ExitCode(fmt.Errorf("plain")); got != int(CodeInternal) {
		t.Fatalf("expected internal exit code, got %d", got)
	}
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("expected zero exit code, got %d", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Wrap(CodeProofUnavailable, "spv", fmt.Errorf("not reachable"))) {
		t.Fatal("expected proof unavailable to be retryable")
	}
	if IsRetryable(New(CodeSourceConfirmation, "failed")) {
		t.Fatal("did not expect source confirmation failure to be retryable")
	}
	if IsRetryable(fmt.Errorf("untyped")) {
		t.Fatal("did not expect untyped error to be retryable")
	}
}

func TestCodeType(t *testing.T) {
	cases := map[Code]string{
		CodeValidation:   "validation_error",
		CodeContinuation: "continuation_failure",
		CodeConfig:       "config_error",
		Code(99):         "internal_error",
	}
	for code, want := range cases {
		if got := code.Type(); got != want {
			t.Fatalf("code %d: expected %s, got %s", code, want, got)
		}
	}
}
