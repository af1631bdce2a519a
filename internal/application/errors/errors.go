// Package apperrors defines application-level error types. Each type maps to
// one entry of the call error taxonomy and is converted to a wire
// ErrorDetail by Detail.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/reglet-dev/netgate/internal/application/dto"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"golang.org/x/sys/unix"
)

// ManifestError indicates a manifest failed to parse or validate.
type ManifestError struct {
	Cause   error
	Message string
}

func (e *ManifestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ManifestError) Unwrap() error {
	return e.Cause
}

// NewManifestError creates a new manifest error.
func NewManifestError(message string, cause error) *ManifestError {
	return &ManifestError{Message: message, Cause: cause}
}

// PermissionError indicates an API or destination check failed.
type PermissionError struct {
	Kind   string // "api" or "destination"
	Target string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s is not granted by the manifest", e.Kind, e.Target)
}

// NewAPIDenied creates a permission error for an API surface check.
func NewAPIDenied(call string) *PermissionError {
	return &PermissionError{Kind: "api", Target: call}
}

// NewDestinationDenied creates a permission error for a destination check.
func NewDestinationDenied(destination string) *PermissionError {
	return &PermissionError{Kind: "destination", Target: destination}
}

// ProtocolError indicates a malformed request, unknown method or bad parameter.
type ProtocolError struct {
	Cause   error
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new protocol error.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{Message: message, Cause: cause}
}

// SocketError indicates an OS-level socket failure.
type SocketError struct {
	Cause error
	Op    string
	Code  string // errno name, e.g. ECONNREFUSED
}

func (e *SocketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return e.Op + " failed"
}

func (e *SocketError) Unwrap() error {
	return e.Cause
}

// NewSocketError creates a socket error, extracting the errno name from cause.
func NewSocketError(op string, cause error) *SocketError {
	return &SocketError{Op: op, Cause: cause, Code: errnoName(cause)}
}

// TimeoutError indicates a bounded wait elapsed.
type TimeoutError struct {
	Cause error
	Op    string
}

func (e *TimeoutError) Error() string {
	return e.Op + ": timed out"
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(op string, cause error) *TimeoutError {
	return &TimeoutError{Op: op, Cause: cause}
}

// ErrInvalidHandle is returned for handles that were never issued, were
// closed, or were retired by accept.
var ErrInvalidHandle = &SocketError{Op: "lookup handle", Code: "EBADF", Cause: errors.New("invalid or retired socket handle")}

// FromIO classifies an I/O error from the net package: deadline expiry
// becomes a TimeoutError, everything else a SocketError.
func FromIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var timeoutErr *TimeoutError
	var socketErr *SocketError
	if errors.As(err, &timeoutErr) || errors.As(err, &socketErr) {
		return err
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return NewTimeoutError(op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(op, err)
	}
	return NewSocketError(op, err)
}

func errnoName(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name := unix.ErrnoName(errno); name != "" {
			return name
		}
		return fmt.Sprintf("errno %d", int(errno))
	}
	return ""
}

// Detail converts any error into its wire form.
func Detail(err error) *dto.ErrorDetail {
	if err == nil {
		return nil
	}

	var (
		detail      *dto.ErrorDetail
		manifestErr *ManifestError
		parseErr    *manifest.ParseError
		permErr     *PermissionError
		protoErr    *ProtocolError
		timeoutErr  *TimeoutError
		socketErr   *SocketError
	)

	switch {
	case errors.As(err, &detail):
		return detail
	case errors.As(err, &manifestErr), errors.As(err, &parseErr):
		return &dto.ErrorDetail{Type: values.ErrorInvalidManifest, Message: err.Error()}
	case errors.As(err, &permErr):
		return &dto.ErrorDetail{Type: values.ErrorPermissionDenied, Message: err.Error()}
	case errors.As(err, &protoErr):
		return &dto.ErrorDetail{Type: values.ErrorProtocol, Message: err.Error()}
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return &dto.ErrorDetail{Type: values.ErrorTimeout, Message: err.Error(), Timeout: true}
	case errors.As(err, &socketErr):
		return &dto.ErrorDetail{Type: values.ErrorSocket, Message: err.Error(), Code: socketErr.Code}
	case errors.Is(err, context.Canceled):
		return &dto.ErrorDetail{Type: values.ErrorProtocol, Message: "call cancelled"}
	default:
		return &dto.ErrorDetail{Type: values.ErrorSocket, Message: err.Error(), Code: errnoName(err)}
	}
}
