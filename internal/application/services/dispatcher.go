package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// DefaultResponseBuffer is the capacity of each call's response channel.
const DefaultResponseBuffer = 16

// Dispatcher validates, authorizes and runs calls. Checks run synchronously
// in Exec, in arrival order; the method itself runs on its own goroutine so
// a blocking socket wait never holds up the next call.
type Dispatcher struct {
	registry *Registry
	metrics  ports.Metrics
	buffer   int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics records decisions and call outcomes.
func WithMetrics(m ports.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithResponseBuffer sets the response channel capacity.
func WithResponseBuffer(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		metrics:  ports.NopMetrics{},
		buffer:   DefaultResponseBuffer,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the method registry
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Exec submits a call. The returned channel yields zero or more intermediate
// responses followed by exactly one Final response, then is closed. Errors,
// including denials, arrive as responses.
func (d *Dispatcher) Exec(ctx context.Context, sb *Sandbox, req dto.CallRequest) <-chan dto.CallResponse {
	out := make(chan dto.CallResponse, d.buffer)
	start := time.Now()

	m, err := d.admit(sb, req, false)
	if err != nil {
		out <- d.final(sb, req, nil, err, start)
		close(out)
		return out
	}

	callCtx, done, err := sb.begin(ctx, req.ID)
	if err != nil {
		out <- d.final(sb, req, nil, apperrors.NewProtocolError("exec "+req.Name(), err), start)
		close(out)
		return out
	}

	call := &Call{ctx: callCtx, dispatcher: d, sandbox: sb, out: out, request: req}
	go func() {
		defer close(out)
		defer done()

		result, err := d.run(callCtx, m, call)
		deliver(callCtx, out, d.final(sb, req, result, err, start))
	}()
	return out
}

// ExecFunc is the callback form of Exec. fn runs on a separate goroutine,
// once per response, never concurrently.
func (d *Dispatcher) ExecFunc(ctx context.Context, sb *Sandbox, req dto.CallRequest, fn func(dto.CallResponse)) {
	responses := d.Exec(ctx, sb, req)
	go func() {
		for resp := range responses {
			fn(resp)
		}
	}()
}

// Call submits a call and waits for its final response, discarding
// intermediate ones.
func (d *Dispatcher) Call(ctx context.Context, sb *Sandbox, req dto.CallRequest) dto.CallResponse {
	var final dto.CallResponse
	for resp := range d.Exec(ctx, sb, req) {
		if resp.Final {
			final = resp
		}
	}
	return final
}

// invoke runs a nested call synchronously on the caller's goroutine.
func (d *Dispatcher) invoke(ctx context.Context, sb *Sandbox, req dto.CallRequest) (any, error) {
	m, err := d.admit(sb, req, true)
	if err != nil {
		return nil, err
	}
	return m.Handler(ctx, &Call{ctx: ctx, dispatcher: d, sandbox: sb, request: req})
}

// admit runs every check that precedes execution. Nothing here touches the
// network.
func (d *Dispatcher) admit(sb *Sandbox, req dto.CallRequest, nested bool) (Method, error) {
	if err := req.Validate(); err != nil {
		return Method{}, apperrors.NewProtocolError("malformed request", err)
	}
	sess := sb.Session()

	if !nested {
		allowed := sess.AllowsAPI(req.Module, req.Submodule, req.Method)
		d.metrics.RecordDecision("api", allowed)
		if !allowed {
			sb.Logger().Info("api denied", "call_id", req.ID, "call", req.Name())
			return Method{}, apperrors.NewAPIDenied(req.Name())
		}
	}

	m, ok := d.registry.Lookup(req.Module, req.Submodule, req.Method)
	if !ok {
		return Method{}, apperrors.NewProtocolError("unknown method "+req.Name(), nil)
	}
	if m.Streaming {
		if nested {
			return Method{}, apperrors.NewProtocolError(req.Name()+" streams and cannot be nested", nil)
		}
		if !req.IsMultiResponse() {
			return Method{}, apperrors.NewProtocolError(req.Name()+" requires multiresponse", nil)
		}
	}

	if m.Destination != nil {
		q, err := m.Destination(req.Params)
		if err != nil {
			return Method{}, apperrors.NewProtocolError("invalid destination for "+req.Name(), err)
		}
		allowed := sess.AllowsDestination(q)
		d.metrics.RecordDecision("destination", allowed)
		if !allowed {
			sb.Logger().Info("destination denied", "call_id", req.ID, "call", req.Name(), "destination", q.String())
			return Method{}, apperrors.NewDestinationDenied(q.String())
		}
	}
	return m, nil
}

// run invokes the handler, turning a panic into a protocol error.
func (d *Dispatcher) run(ctx context.Context, m Method, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			call.sandbox.Logger().Error("call handler panicked",
				"call_id", call.request.ID,
				"call", call.request.Name(),
				"panic", r,
				"stack", string(debug.Stack()))
			result = nil
			err = apperrors.NewProtocolError(fmt.Sprintf("internal error in %s", call.request.Name()), fmt.Errorf("%v", r))
		}
	}()
	return m.Handler(ctx, call)
}

func (d *Dispatcher) final(sb *Sandbox, req dto.CallRequest, result any, err error, start time.Time) dto.CallResponse {
	resp := dto.CallResponse{ID: req.ID, Final: true}
	var errType values.ErrorType
	if err != nil {
		resp.Error = apperrors.Detail(err)
		errType = resp.Error.Type
		if !errType.IsDenial() {
			sb.Logger().Debug("call failed", "call_id", req.ID, "call", req.Name(), "error", err)
		}
	} else {
		resp.Result = result
	}
	d.metrics.RecordCall(req.Name(), errType, time.Since(start))
	return resp
}
