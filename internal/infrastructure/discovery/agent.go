// Package discovery implements the mDNS and UPnP neighbor discovery agents.
// Every address an agent finds is added to the session's neighbor set under
// the protocol's placeholder, which extends the destinations a manifest
// with {mdns} or {upnp} hosts grants.
package discovery

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

const (
	// DefaultTimeout bounds a discovery run when the caller gives none.
	DefaultTimeout = 5 * time.Second

	// recvSlice caps each receive so cancellation is noticed promptly.
	recvSlice = 250 * time.Millisecond
)

// Result is one discovered device.
type Result struct {
	Metadata map[string]string `json:"metadata,omitempty" cbor:"metadata,omitempty"`
	Protocol string            `json:"proto" cbor:"proto"`
	Address  string            `json:"address" cbor:"address"`
	Name     string            `json:"name,omitempty" cbor:"name,omitempty"`
	Port     int               `json:"port,omitempty" cbor:"port,omitempty"`
}

// Final is the terminal discovery message.
type Final struct {
	Found   int  `json:"found" cbor:"found"`
	Timeout bool `json:"timeout" cbor:"timeout"`
}

// Protocol describes one discovery protocol.
type Protocol struct {
	// Query builds the probe sent to the rendezvous group.
	Query func() ([]byte, error)
	// Parse turns one datagram into a result. ok is false for datagrams that
	// are not answers (other hosts' queries, malformed packets).
	Parse func(data []byte, from values.Endpoint) (r Result, ok bool)

	Name  string
	Group string
	Port  int
	TTL   int
}

// Placeholder is the manifest placeholder discovered hosts are filed under.
func (p Protocol) Placeholder() string {
	return p.Name
}

// Rendezvous is the destination an agent must be granted before it opens.
func (p Protocol) Rendezvous() permission.DestinationQuery {
	return permission.DestinationQuery{Proto: values.SchemeMulticast, Host: p.Group, Port: p.Port}
}

// Agent runs discovery for one protocol over one multicast socket.
type Agent struct {
	engine ports.SocketEngine
	proto  Protocol
	handle values.SocketHandle
	// interval is the first retransmission delay; it doubles per probe.
	interval time.Duration
}

// Open creates the agent's socket, binds the rendezvous port and joins the
// group. The socket is released if any step fails.
func Open(engine ports.SocketEngine, proto Protocol) (*Agent, error) {
	h, err := engine.OpenMulticast(proto.TTL, true)
	if err != nil {
		return nil, err
	}
	if err := engine.Join(h, proto.Group, proto.Port, true); err != nil {
		_ = engine.Close(h)
		return nil, err
	}
	return &Agent{engine: engine, proto: proto, handle: h, interval: initialProbeInterval}, nil
}

// Handle returns the agent's socket handle
func (a *Agent) Handle() values.SocketHandle {
	return a.handle
}

// Protocol returns the agent's protocol
func (a *Agent) Protocol() Protocol {
	return a.proto
}

// Discover probes the group and reports each distinct responder to found
// until timeout elapses, ctx is cancelled, or found returns false. Probes are
// repeated at doubling intervals while the run lasts.
func (a *Agent) Discover(ctx context.Context, timeout time.Duration, found func(Result) bool) (Final, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	query, err := a.proto.Query()
	if err != nil {
		return Final{}, apperrors.NewProtocolError("build "+a.proto.Name+" query", err)
	}

	deadline := time.Now().Add(timeout)
	var nextProbe time.Time
	probes := 0
	seen := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return Final{Found: len(seen)}, err
		}
		now := time.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			return Final{Found: len(seen), Timeout: true}, nil
		}

		if !now.Before(nextProbe) {
			if _, err := a.engine.SendTo(a.handle, query, a.proto.Group, a.proto.Port); err != nil {
				return Final{Found: len(seen)}, err
			}
			nextProbe = now.Add(probeDelay(probes, a.interval, maxProbeInterval))
			probes++
		}

		wait := min(remaining, recvSlice, time.Until(nextProbe))
		data, from, err := a.engine.RecvFrom(a.handle, max(wait, time.Millisecond), 0)
		if err != nil {
			var timeoutErr *apperrors.TimeoutError
			if errors.As(err, &timeoutErr) {
				continue
			}
			return Final{Found: len(seen)}, err
		}

		r, ok := a.proto.Parse(data, from)
		if !ok || seen[r.Address] {
			continue
		}
		seen[r.Address] = true
		r.Protocol = a.proto.Name
		if !found(r) {
			return Final{Found: len(seen)}, ctx.Err()
		}
	}
}

// Close releases the agent's socket.
func (a *Agent) Close() error {
	return a.engine.Close(a.handle)
}
