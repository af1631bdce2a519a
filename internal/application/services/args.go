package services

import (
	"fmt"
	"time"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// Args reads positional parameters, keeping the first error. Handlers read
// everything they need and then check Err once.
type Args struct {
	err    error
	params dto.Params
	name   string
}

// ArgsOf returns a reader over the parameters of c.
func ArgsOf(c *Call) *Args {
	return &Args{params: c.request.Params, name: c.request.Name()}
}

func (a *Args) fail(err error) {
	if a.err == nil && err != nil {
		a.err = err
	}
}

// Err returns the first parameter error as a protocol error.
func (a *Args) Err() error {
	if a.err == nil {
		return nil
	}
	return apperrors.NewProtocolError("bad parameters for "+a.name, a.err)
}

// Handle reads a socket handle.
func (a *Args) Handle(i int) values.SocketHandle {
	h, err := a.params.Handle(i)
	a.fail(err)
	return h
}

// String reads a required string.
func (a *Args) String(i int) string {
	s, err := a.params.String(i)
	a.fail(err)
	return s
}

// Int reads a required integer.
func (a *Args) Int(i int) int {
	n, err := a.params.Int(i)
	a.fail(err)
	return n
}

// IntOr reads an optional integer.
func (a *Args) IntOr(i, def int) int {
	n, err := a.params.IntOr(i, def)
	a.fail(err)
	return n
}

// Port reads a required port number.
func (a *Args) Port(i int) int {
	n, err := a.params.Int(i)
	if err == nil && (n < 0 || n > 65535) {
		err = fmt.Errorf("parameter %d: port %d out of range", i, n)
	}
	a.fail(err)
	return n
}

// BoolOr reads an optional boolean.
func (a *Args) BoolOr(i int, def bool) bool {
	b, err := a.params.BoolOr(i, def)
	a.fail(err)
	return b
}

// Bytes reads a payload.
func (a *Args) Bytes(i int) []byte {
	b, err := a.params.Bytes(i)
	a.fail(err)
	return b
}

// Object reads an options object.
func (a *Args) Object(i int) dto.ObjectView {
	if !a.params.Has(i) {
		return dto.ObjectView{}
	}
	o, err := a.params.Object(i)
	a.fail(err)
	return o
}

// Timeout reads a millisecond timeout. Negative means wait indefinitely, zero
// means poll; an absent value yields def.
func (a *Args) Timeout(i int, def time.Duration) time.Duration {
	if !a.params.Has(i) {
		return def
	}
	ms, err := a.params.Int(i)
	a.fail(err)
	if ms < 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}

// DestinationAt derives a destination from the host and port parameters at
// the given positions.
func DestinationAt(scheme values.Scheme, hostIdx, portIdx int) DestinationFunc {
	return func(p dto.Params) (permission.DestinationQuery, error) {
		host, err := p.String(hostIdx)
		if err != nil {
			return permission.DestinationQuery{}, err
		}
		port, err := p.Int(portIdx)
		if err != nil {
			return permission.DestinationQuery{}, err
		}
		if port < 0 || port > 65535 {
			return permission.DestinationQuery{}, fmt.Errorf("port %d out of range", port)
		}
		return permission.DestinationQuery{Proto: scheme, Host: host, Port: port}, nil
	}
}

// FixedDestination always reports q.
func FixedDestination(q permission.DestinationQuery) DestinationFunc {
	return func(dto.Params) (permission.DestinationQuery, error) {
		return q, nil
	}
}
