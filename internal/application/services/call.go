package services

import (
	"context"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
)

// Call is the view a handler gets of the call it is running.
type Call struct {
	ctx        context.Context
	dispatcher *Dispatcher
	sandbox    *Sandbox
	// out is nil for nested calls, which deliver only their return value.
	out     chan<- dto.CallResponse
	request dto.CallRequest
}

// Request returns the call descriptor
func (c *Call) Request() dto.CallRequest {
	return c.request
}

// Params returns the call parameters
func (c *Call) Params() dto.Params {
	return c.request.Params
}

// Sandbox returns the session the call runs in
func (c *Call) Sandbox() *Sandbox {
	return c.sandbox
}

// Nested reports whether the call was issued by another call.
func (c *Call) Nested() bool {
	return c.out == nil
}

// Emit delivers an intermediate result. It returns false once the call has
// been cancelled and nothing more will be delivered.
func (c *Call) Emit(result any) bool {
	if c.out == nil {
		return c.ctx.Err() == nil
	}
	return deliver(c.ctx, c.out, dto.CallResponse{ID: c.request.ID, Result: result})
}

// EmitError delivers an intermediate error without ending the call.
func (c *Call) EmitError(err error) bool {
	if c.out == nil {
		return c.ctx.Err() == nil
	}
	return deliver(c.ctx, c.out, dto.CallResponse{ID: c.request.ID, Error: apperrors.Detail(err)})
}

// Invoke runs another method in the same session and returns its result. The
// API check is skipped, since the outer call already passed it, but the
// destination check is not.
func (c *Call) Invoke(ctx context.Context, module, submodule, method string, params ...any) (any, error) {
	return c.dispatcher.invoke(ctx, c.sandbox, dto.CallRequest{
		Module:    module,
		Submodule: submodule,
		Method:    method,
		Params:    params,
		ID:        c.request.ID,
	})
}

// deliver sends resp unless ctx is done and nobody is reading.
func deliver(ctx context.Context, out chan<- dto.CallResponse, resp dto.CallResponse) bool {
	select {
	case out <- resp:
		return true
	case <-ctx.Done():
		select {
		case out <- resp:
			return true
		default:
			return false
		}
	}
}
