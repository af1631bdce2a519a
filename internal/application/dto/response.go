package dto

import "github.com/reglet-dev/netgate/internal/domain/values"

// CallResponse is one message delivered for a call. Single-response calls get
// exactly one, with Final set. Streaming calls get any number of intermediate
// responses followed by exactly one Final response.
type CallResponse struct {
	Result any          `json:"result,omitempty" cbor:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty" cbor:"error,omitempty"`
	ID     int64        `json:"id" cbor:"id"`
	Final  bool         `json:"final" cbor:"final"`
}

// Failed reports whether the response carries an error
func (r CallResponse) Failed() bool {
	return r.Error != nil
}

// ErrorDetail is the wire form of every error. Errors are always delivered as
// data, never raised across the call boundary.
type ErrorDetail struct {
	Type    values.ErrorType `json:"type" cbor:"type"`
	Message string           `json:"message" cbor:"message"`
	// Code carries the OS error name for sockerror, e.g. "ECONNREFUSED".
	Code    string `json:"code,omitempty" cbor:"code,omitempty"`
	Timeout bool   `json:"timeout,omitempty" cbor:"timeout,omitempty"`
}

// Error implements error so a detail can be propagated through compositions.
func (e *ErrorDetail) Error() string {
	if e.Code != "" {
		return string(e.Type) + ": " + e.Message + " (" + e.Code + ")"
	}
	return string(e.Type) + ": " + e.Message
}
