// Package domain defines the core domain models for the cluster daemon.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
//
// Codes use the form CS-<AREA>-<NNNN>; the numeric part borrows HTTP-like
// classes (4xxx caller error, 5xxx daemon-side condition).
type DomainError struct {
	Code    string // Error code (e.g., "CS-IPC-4030")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Connection Admission Errors (IPC)
// Returned by the connect hook; each maps to one deny reason.
// ============================================================================

var (
	// ErrServiceUnknown indicates the requested service is not registered.
	ErrServiceUnknown = NewDomainError("CS-IPC-4040", "service not registered")

	// ErrServiceUnloading indicates the service is being unloaded.
	ErrServiceUnloading = NewDomainError("CS-IPC-5030", "service unloading")

	// ErrDescriptorsExhausted indicates too few file descriptors are left.
	ErrDescriptorsExhausted = NewDomainError("CS-IPC-5031", "not enough file descriptors")

	// ErrAccessDenied indicates the peer is neither privileged nor allowed.
	ErrAccessDenied = NewDomainError("CS-IPC-4030", "connection credentials not permitted")
)

// ============================================================================
// Request Errors (REQ)
// ============================================================================

var (
	// ErrMalformedHeader indicates a request header could not be parsed.
	ErrMalformedHeader = NewDomainError("CS-REQ-4000", "malformed request header")

	// ErrRequestTooLarge indicates a request exceeds the channel size limit.
	ErrRequestTooLarge = NewDomainError("CS-REQ-4130", "request exceeds size limit")

	// ErrConnectionGone indicates the connection handle is stale.
	ErrConnectionGone = NewDomainError("CS-REQ-4100", "connection no longer exists")

	// ErrResponseOverflow indicates a client stopped reading responses and
	// its connection was dropped.
	ErrResponseOverflow = NewDomainError("CS-REQ-5070", "response buffer full")
)

// ============================================================================
// Transport Errors (TRN)
// ============================================================================

var (
	// ErrMessageTooLarge indicates a multicast exceeds the transport limit.
	ErrMessageTooLarge = NewDomainError("CS-TRN-4130", "message exceeds transport limit")

	// ErrBadFrame indicates a received frame failed validation.
	ErrBadFrame = NewDomainError("CS-TRN-4000", "invalid transport frame")

	// ErrTransportClosed indicates the transport has been shut down.
	ErrTransportClosed = NewDomainError("CS-TRN-5030", "transport closed")
)

// ============================================================================
// Service Errors (SVC)
// ============================================================================

var (
	// ErrNotSupported indicates the service does not implement the request.
	ErrNotSupported = NewDomainError("CS-SVC-5010", "operation not supported")

	// ErrBadPayload indicates a service payload had the wrong layout.
	ErrBadPayload = NewDomainError("CS-SVC-4000", "invalid service payload")

	// ErrNotMember indicates a group operation on a connection that never joined.
	ErrNotMember = NewDomainError("CS-SVC-4041", "not a group member")

	// ErrAlreadyMember indicates the connection already joined a group.
	ErrAlreadyMember = NewDomainError("CS-SVC-4090", "already a group member")
)

// ResultFor maps an error to the client result vocabulary.
func ResultFor(err error) Result {
	if err == nil {
		return ResultOK
	}
	switch GetErrorCode(err) {
	case ErrServiceUnknown.Code:
		return ResultNotExist
	case ErrServiceUnloading.Code, ErrNotSupported.Code:
		return ResultNotSupported
	case ErrDescriptorsExhausted.Code:
		return ResultNoResources
	case ErrAccessDenied.Code:
		return ResultAccess
	case ErrMalformedHeader.Code, ErrBadPayload.Code:
		return ResultInvalidParam
	case ErrRequestTooLarge.Code, ErrMessageTooLarge.Code:
		return ResultTooBig
	case ErrNotMember.Code:
		return ResultNotExist
	case ErrAlreadyMember.Code:
		return ResultExist
	case ErrConnectionGone.Code:
		return ResultBadHandle
	default:
		return ResultLibrary
	}
}
