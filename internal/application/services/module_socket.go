package services

import (
	"context"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// AcceptResult is returned by socket.tcp.acceptstart. The listener handle is
// invalid afterwards; Handle replaces it.
type AcceptResult struct {
	IP     string              `json:"ip" cbor:"ip"`
	Handle values.SocketHandle `json:"handle" cbor:"handle"`
	Port   int                 `json:"port" cbor:"port"`
}

// SendResult reports how many bytes were written.
type SendResult struct {
	Length int `json:"length" cbor:"length"`
}

// RecvResult carries received data. Data is a string in string mode and an
// array of byte values otherwise; Raw holds the bytes for nested callers.
type RecvResult struct {
	Data    any    `json:"data" cbor:"data"`
	Address string `json:"address,omitempty" cbor:"address,omitempty"`
	Raw     []byte `json:"-" cbor:"-"`
	Length  int    `json:"length" cbor:"length"`
	Port    int    `json:"port,omitempty" cbor:"port,omitempty"`
}

func newRecvResult(data []byte, asString bool) RecvResult {
	r := RecvResult{Raw: data, Length: len(data)}
	if asString {
		r.Data = string(data)
		return r
	}
	vals := make([]int, len(data))
	for i, b := range data {
		vals[i] = int(b)
	}
	r.Data = vals
	return r
}

// RegisterSocketModule registers socket.tcp, socket.udp, socket.broadcast and
// socket.multicast.
func RegisterSocketModule(r *Registry) {
	reg := func(sub, method string, m Method) {
		r.Register("socket", sub, method, m)
	}

	reg("tcp", "openSendSocket", Method{Handler: tcpOpenSend, Destination: DestinationAt(values.SchemeTCP, 0, 1)})
	reg("tcp", "openListenSocket", Method{Handler: tcpOpenListen})
	reg("tcp", "acceptstart", Method{Handler: tcpAccept})

	reg("udp", "openSocket", Method{Handler: udpOpen})
	reg("udp", "bind", Method{Handler: udpBind})
	reg("udp", "connect", Method{Handler: udpConnect, Destination: DestinationAt(values.SchemeUDP, 1, 2)})
	reg("udp", "sendto", Method{Handler: sendTo, Destination: DestinationAt(values.SchemeUDP, 2, 3)})
	reg("udp", "recvfrom", Method{Handler: recvFrom})

	reg("broadcast", "openSendSocket", Method{Handler: broadcastOpen})
	reg("broadcast", "openReceiveSocket", Method{Handler: broadcastOpenReceive})
	reg("broadcast", "send", Method{Handler: sendTo, Destination: DestinationAt(values.SchemeBroadcast, 2, 3)})
	reg("broadcast", "recvfrom", Method{Handler: recvFrom})

	reg("multicast", "openSocket", Method{Handler: multicastOpen})
	reg("multicast", "join", Method{Handler: multicastJoin})
	reg("multicast", "send", Method{Handler: sendTo, Destination: DestinationAt(values.SchemeMulticast, 2, 3)})
	reg("multicast", "recvfrom", Method{Handler: recvFrom})

	// connected sockets
	for _, sub := range []string{"tcp", "udp"} {
		reg(sub, "send", Method{Handler: send})
		reg(sub, "recv", Method{Handler: recv})
		reg(sub, "getHostIP", Method{Handler: localAddress})
		reg(sub, "getPeerName", Method{Handler: peerAddress})
		reg(sub, "setSocketOption", Method{Handler: setOption})
	}
	for _, sub := range []string{"tcp", "udp", "broadcast", "multicast"} {
		reg(sub, "getSocketInfo", Method{Handler: socketInfo})
		reg(sub, "closeSocket", Method{Handler: closeSocket})
	}
}

func tcpOpenSend(ctx context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	host, port, timeout := a.String(0), a.Port(1), a.Timeout(2, 0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return c.sandbox.engine.OpenTCPClient(ctx, host, port, timeout)
}

func tcpOpenListen(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	port, reuse := a.Port(0), a.BoolOr(1, false)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return c.sandbox.engine.OpenTCPListener(port, reuse)
}

func tcpAccept(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, timeout := a.Handle(0), a.Timeout(1, 0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	next, peer, err := c.sandbox.engine.Accept(h, timeout)
	if err != nil {
		return nil, err
	}
	return AcceptResult{Handle: next, IP: peer.Address, Port: peer.Port}, nil
}

func send(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, data := a.Handle(0), a.Bytes(1)
	if err := a.Err(); err != nil {
		return nil, err
	}
	n, err := c.sandbox.engine.Send(h, data)
	if err != nil {
		return nil, err
	}
	return SendResult{Length: n}, nil
}

func sendTo(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, data, host, port := a.Handle(0), a.Bytes(1), a.String(2), a.Port(3)
	if err := a.Err(); err != nil {
		return nil, err
	}
	n, err := c.sandbox.engine.SendTo(h, data, host, port)
	if err != nil {
		return nil, err
	}
	return SendResult{Length: n}, nil
}

func recv(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, asString, timeout, size := a.Handle(0), a.BoolOr(1, false), a.Timeout(2, 0), a.IntOr(3, 0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	data, err := c.sandbox.engine.Recv(h, timeout, size)
	if err != nil {
		return nil, err
	}
	return newRecvResult(data, asString), nil
}

func recvFrom(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, asString, timeout, size := a.Handle(0), a.BoolOr(1, false), a.Timeout(2, 0), a.IntOr(3, 0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	data, from, err := c.sandbox.engine.RecvFrom(h, timeout, size)
	if err != nil {
		return nil, err
	}
	r := newRecvResult(data, asString)
	r.Address, r.Port = from.Address, from.Port
	return r, nil
}

func udpOpen(_ context.Context, c *Call) (any, error) {
	return c.sandbox.engine.OpenUDP()
}

func udpBind(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, addr, port, reuse := a.Handle(0), a.String(1), a.Port(2), a.BoolOr(3, false)
	if err := a.Err(); err != nil {
		return nil, err
	}
	if err := c.sandbox.engine.Bind(h, addr, port, reuse); err != nil {
		return nil, err
	}
	return true, nil
}

func udpConnect(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, host, port := a.Handle(0), a.String(1), a.Port(2)
	if err := a.Err(); err != nil {
		return nil, err
	}
	if err := c.sandbox.engine.Connect(h, host, port); err != nil {
		return nil, err
	}
	return true, nil
}

func broadcastOpen(_ context.Context, c *Call) (any, error) {
	return c.sandbox.engine.OpenBroadcast()
}

func broadcastOpenReceive(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	port := a.Port(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	engine := c.sandbox.engine
	h, err := engine.OpenBroadcast()
	if err != nil {
		return nil, err
	}
	if err := engine.Bind(h, "", port, true); err != nil {
		_ = engine.Close(h)
		return nil, err
	}
	return h, nil
}

func multicastOpen(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	ttl, loopback := a.IntOr(0, 1), a.BoolOr(1, true)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return c.sandbox.engine.OpenMulticast(ttl, loopback)
}

func multicastJoin(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, group, port, reuse := a.Handle(0), a.String(1), a.IntOr(2, 0), a.BoolOr(3, false)
	if err := a.Err(); err != nil {
		return nil, err
	}
	if err := c.sandbox.engine.Join(h, group, port, reuse); err != nil {
		return nil, err
	}
	return true, nil
}

func localAddress(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h := a.Handle(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return c.sandbox.engine.LocalAddress(h)
}

func socketInfo(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h := a.Handle(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return c.sandbox.engine.Describe(h)
}

func peerAddress(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h := a.Handle(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return c.sandbox.engine.PeerAddress(h)
}

func setOption(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h, name := a.Handle(0), a.String(1)
	if err := a.Err(); err != nil {
		return nil, err
	}
	opt, err := values.ParseSocketOption(name)
	if err != nil {
		return nil, apperrors.NewProtocolError("setSocketOption", err)
	}

	var value int
	if opt.IsBoolean() {
		if a.BoolOr(2, false) {
			value = 1
		}
	} else {
		value = a.Int(2)
	}
	if err := a.Err(); err != nil {
		return nil, err
	}
	if err := c.sandbox.engine.SetOption(h, opt, value); err != nil {
		return nil, err
	}
	return true, nil
}

func closeSocket(_ context.Context, c *Call) (any, error) {
	a := ArgsOf(c)
	h := a.Handle(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	if err := c.sandbox.engine.Close(h); err != nil {
		return nil, err
	}
	return true, nil
}
