package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeConfig      Code = 3
	CodeValidation  Code = 4
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeBlocked     Code = 16
	CodeSigner      Code = 17

	// Transfer and swap pipeline failures, in the order they can occur.
	CodeDryRunRejected     Code = 20
	CodeSubmission         Code = 21
	CodeSourceConfirmation Code = 22
	CodeProofUnavailable   Code = 23
	CodeContinuation       Code = 24
)

// Type returns the envelope error type for the code.
func (c Code) Type() string {
	switch c {
	case CodeUsage:
		return "usage_error"
	case CodeConfig:
		return "config_error"
	case CodeValidation:
		return "validation_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "command_blocked"
	case CodeSigner:
		return "signer_error"
	case CodeDryRunRejected:
		return "dry_run_rejected"
	case CodeSubmission:
		return "submission_failure"
	case CodeSourceConfirmation:
		return "source_confirmation_failure"
	case CodeProofUnavailable:
		return "proof_unavailable"
	case CodeContinuation:
		return "continuation_failure"
	default:
		return "internal_error"
	}
}

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

// IsRetryable reports whether the failure is expected to clear on its own,
// such as an SPV proof requested before the source step has enough depth.
func IsRetryable(err error) bool {
	cErr, ok := As(err)
	if !ok {
		return false
	}
	switch cErr.Code {
	case CodeProofUnavailable, CodeRateLimited, CodeUnavailable:
		return true
	default:
		return false
	}
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
