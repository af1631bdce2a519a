package sockets

import (
	"net"
	"syscall"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// SetOption applies one option from the closed vocabulary. Boolean options
// treat any non-zero value as on.
func (e *Engine) SetOption(h values.SocketHandle, opt values.SocketOption, value int) error {
	rec, err := e.arena.get(h)
	if err != nil {
		return err
	}

	switch opt {
	case values.OptionReuseAddr:
		return setInt(rec, "setsockopt reuseaddr", unix.SO_REUSEADDR, boolInt(value))
	case values.OptionBroadcast:
		return setInt(rec, "setsockopt bcast", unix.SO_BROADCAST, boolInt(value))
	case values.OptionMulticastTTL, values.OptionMulticastLoopback:
		if rec.udp == nil {
			return apperrors.NewProtocolError(string(opt)+" requires a datagram socket", nil)
		}
		pc := ipv4.NewPacketConn(rec.udp)
		if opt == values.OptionMulticastTTL {
			err = pc.SetMulticastTTL(value)
		} else {
			err = pc.SetMulticastLoopback(value != 0)
		}
		if err != nil {
			return apperrors.NewSocketError("setsockopt "+string(opt), err)
		}
		return nil
	default:
		return apperrors.NewProtocolError("unsupported socket option: "+string(opt), nil)
	}
}

func setInt(rec *record, op string, name, value int) error {
	rc, err := rec.rawConn()
	if err != nil {
		return err
	}
	return control(rc, op, func(fd int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, name, value)
	})
}

// LocalAddress returns the bound address of the socket.
func (e *Engine) LocalAddress(h values.SocketHandle) (values.Endpoint, error) {
	return e.address(h, "getsockname", unix.Getsockname)
}

// PeerAddress returns the connected peer of the socket.
func (e *Engine) PeerAddress(h values.SocketHandle) (values.Endpoint, error) {
	return e.address(h, "getpeername", unix.Getpeername)
}

func (e *Engine) address(h values.SocketHandle, op string, fn func(int) (unix.Sockaddr, error)) (values.Endpoint, error) {
	rec, err := e.arena.get(h)
	if err != nil {
		return values.Endpoint{}, err
	}
	rc, err := rec.rawConn()
	if err != nil {
		return values.Endpoint{}, err
	}

	var sa unix.Sockaddr
	err = control(rc, op, func(fd int) error {
		var opErr error
		sa, opErr = fn(fd)
		return opErr
	})
	if err != nil {
		return values.Endpoint{}, err
	}
	return endpointFromSockaddr(sa), nil
}

// control runs fn against the raw descriptor behind rc.
func control(rc syscall.RawConn, op string, fn func(fd int) error) error {
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return apperrors.NewSocketError(op, err)
	}
	if opErr != nil {
		return apperrors.NewSocketError(op, opErr)
	}
	return nil
}

func boolInt(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}

func sockaddr(addr *net.UDPAddr) unix.Sockaddr {
	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To4())
	return sa
}

func endpointFromSockaddr(sa unix.Sockaddr) values.Endpoint {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return values.Endpoint{Address: net.IP(a.Addr[:]).String(), Port: a.Port}
	case *unix.SockaddrInet6:
		return values.Endpoint{Address: net.IP(a.Addr[:]).String(), Port: a.Port}
	}
	return values.Endpoint{}
}

func endpointFromAddr(addr net.Addr) values.Endpoint {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return values.Endpoint{Address: a.IP.String(), Port: a.Port}
	case *net.UDPAddr:
		return values.Endpoint{Address: a.IP.String(), Port: a.Port}
	}
	return values.Endpoint{}
}
