package discovery

import (
	"context"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// Register adds proto.mdns and proto.upnp to the registry.
func Register(r *services.Registry) {
	for _, proto := range []Protocol{MDNS, UPnP} {
		dst := services.FixedDestination(proto.Rendezvous())
		r.Register("proto", proto.Name, "create", services.Method{Handler: createHandler(proto), Destination: dst})
		r.Register("proto", proto.Name, "discovery", services.Method{Handler: discoveryHandler(proto), Destination: dst, Streaming: true})
		r.Register("proto", proto.Name, "close", services.Method{Handler: closeHandler(proto)})
	}
}

func createHandler(proto Protocol) services.Handler {
	return func(_ context.Context, c *services.Call) (any, error) {
		sb := c.Sandbox()
		agent, err := Open(sb.Engine(), proto)
		if err != nil {
			return nil, err
		}
		sb.Attach(agent.Handle(), agent)
		sb.Logger().Debug("discovery agent created", "proto", proto.Name, "handle", agent.Handle())
		return agent.Handle(), nil
	}
}

func discoveryHandler(proto Protocol) services.Handler {
	return func(ctx context.Context, c *services.Call) (any, error) {
		a := services.ArgsOf(c)
		h, timeout := a.Handle(0), a.Timeout(1, DefaultTimeout)
		if err := a.Err(); err != nil {
			return nil, err
		}
		agent, err := lookup(c.Sandbox(), h, proto)
		if err != nil {
			return nil, err
		}

		neighbors := c.Sandbox().Session().Neighbors()
		final, err := agent.Discover(ctx, timeout, func(r Result) bool {
			if neighbors.Add(proto.Placeholder(), r.Address) {
				c.Sandbox().Logger().Info("neighbor discovered", "proto", proto.Name, "address", r.Address)
			}
			return c.Emit(r)
		})
		if err != nil {
			return nil, err
		}
		return final, nil
	}
}

func closeHandler(proto Protocol) services.Handler {
	return func(_ context.Context, c *services.Call) (any, error) {
		a := services.ArgsOf(c)
		h := a.Handle(0)
		if err := a.Err(); err != nil {
			return nil, err
		}
		if _, err := lookup(c.Sandbox(), h, proto); err != nil {
			return nil, err
		}
		res, _ := c.Sandbox().Detach(h)
		if err := res.Close(); err != nil {
			return nil, err
		}
		return true, nil
	}
}

func lookup(sb *services.Sandbox, h values.SocketHandle, proto Protocol) (*Agent, error) {
	res, ok := sb.Resource(h)
	if !ok {
		return nil, apperrors.ErrInvalidHandle
	}
	agent, ok := res.(*Agent)
	if !ok || agent.proto.Name != proto.Name {
		return nil, apperrors.NewProtocolError("handle "+h.String()+" is not a "+proto.Name+" agent", nil)
	}
	return agent, nil
}
