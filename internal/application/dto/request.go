// Package dto contains the data transfer objects exchanged between callers
// and the dispatcher.
package dto

import "fmt"

// CallRequest is a one-shot call descriptor submitted by a caller.
type CallRequest struct {
	Module    string `json:"module" cbor:"module"`
	Submodule string `json:"submodule" cbor:"submodule"`
	Method    string `json:"method" cbor:"method"`
	Params    Params `json:"params,omitempty" cbor:"params,omitempty"`
	ID        int64  `json:"id" cbor:"id"`

	// MultiResponse requests streaming delivery. MultiResp is an accepted
	// alias carried by older callers.
	MultiResponse bool `json:"multiresponse,omitempty" cbor:"multiresponse,omitempty"`
	MultiResp     bool `json:"multiresp,omitempty" cbor:"multiresp,omitempty"`
}

// IsMultiResponse reports whether the caller asked for streaming delivery.
func (r CallRequest) IsMultiResponse() bool {
	return r.MultiResponse || r.MultiResp
}

// Validate checks the request shape.
func (r CallRequest) Validate() error {
	switch {
	case r.Module == "":
		return fmt.Errorf("request %d: missing module", r.ID)
	case r.Submodule == "":
		return fmt.Errorf("request %d: missing submodule", r.ID)
	case r.Method == "":
		return fmt.Errorf("request %d: missing method", r.ID)
	}
	return nil
}

// Name returns module.submodule.method
func (r CallRequest) Name() string {
	return r.Module + "." + r.Submodule + "." + r.Method
}
