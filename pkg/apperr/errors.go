package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an application error. Handlers map codes to HTTP
// statuses; the stream orchestrator maps them to terminal finish reasons.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeProviderUnsupported Code = "PROVIDER_UNSUPPORTED"
	CodeClientUnready       Code = "CLIENT_UNREADY"
	CodeUpstream            Code = "UPSTREAM_ERROR"
	CodeTimeout             Code = "TIMEOUT_ERROR"
	CodeNetwork             Code = "NETWORK_ERROR"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is the application error type carried across layer boundaries.
type Error struct {
	Code    Code
	Message string
	Err     error

	// UpstreamStatus is the HTTP status returned by the upstream API
	// when Code is CodeUpstream, zero otherwise.
	UpstreamStatus int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with an explicit code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with an explicit code and an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// NewInvalidInput reports a malformed or unacceptable request.
func NewInvalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

// NewProviderUnsupported reports an unknown provider name.
func NewProviderUnsupported(provider string) *Error {
	return &Error{Code: CodeProviderUnsupported, Message: fmt.Sprintf("unsupported provider: %q", provider)}
}

// NewClientUnready reports that the shared upstream client never initialized.
func NewClientUnready() *Error {
	return &Error{Code: CodeClientUnready, Message: "upstream HTTP client is not initialized"}
}

// NewUpstream reports a non-2xx response from the upstream API.
func NewUpstream(status int, message string) *Error {
	return &Error{Code: CodeUpstream, Message: message, UpstreamStatus: status}
}

// NewTimeout reports an upstream deadline or idle-read expiry.
func NewTimeout(message string, cause error) *Error {
	return &Error{Code: CodeTimeout, Message: message, Err: cause}
}

// NewNetwork reports a DNS, connect, or mid-stream transport fault.
func NewNetwork(message string, cause error) *Error {
	return &Error{Code: CodeNetwork, Message: message, Err: cause}
}

// NewInternal reports an unexpected internal failure.
func NewInternal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: cause}
}

// CodeOf extracts the application code from err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// UpstreamStatusOf extracts the upstream HTTP status from err, zero when
// absent.
func UpstreamStatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.UpstreamStatus
	}
	return 0
}

// MessageOf extracts the application message from err, falling back to
// err.Error().
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// IsTimeout reports whether err is a timeout-class application error.
func IsTimeout(err error) bool {
	return CodeOf(err) == CodeTimeout
}

// IsNetwork reports whether err is a transport-class application error.
func IsNetwork(err error) bool {
	return CodeOf(err) == CodeNetwork
}

// IsUpstream reports whether err is an upstream-rejection error.
func IsUpstream(err error) bool {
	return CodeOf(err) == CodeUpstream
}
