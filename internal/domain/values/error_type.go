package values

import "fmt"

// ErrorType classifies every error a call can return. Errors travel to the
// caller as data, so the type string is part of the wire contract.
type ErrorType string

const (
	// ErrorInvalidManifest indicates a structural violation found while parsing a manifest
	ErrorInvalidManifest ErrorType = "invalidmanifest"
	// ErrorPermissionDenied indicates an API or destination check failed
	ErrorPermissionDenied ErrorType = "permissiondenied"
	// ErrorProtocol indicates a malformed request, unknown method or bad parameters
	ErrorProtocol ErrorType = "protocolerror"
	// ErrorSocket indicates an OS-level socket failure
	ErrorSocket ErrorType = "sockerror"
	// ErrorTimeout indicates a bounded wait elapsed
	ErrorTimeout ErrorType = "timeout"
)

// IsTimeout returns true if this error type represents an elapsed wait
func (t ErrorType) IsTimeout() bool {
	return t == ErrorTimeout
}

// IsDenial returns true if the call was refused before any work was done
func (t ErrorType) IsDenial() bool {
	return t == ErrorPermissionDenied || t == ErrorInvalidManifest
}

// Validate returns an error if the error type value is invalid
func (t ErrorType) Validate() error {
	switch t {
	case ErrorInvalidManifest, ErrorPermissionDenied, ErrorProtocol, ErrorSocket, ErrorTimeout:
		return nil
	default:
		return fmt.Errorf("invalid error type: %s", t)
	}
}
