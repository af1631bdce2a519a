package sockets

import (
	"net"
	"os"
	"strconv"
	"time"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// OpenUDP opens an unbound IPv4 datagram socket.
func (e *Engine) OpenUDP() (values.SocketHandle, error) {
	return e.openDatagram(false)
}

// OpenBroadcast opens a datagram socket with SO_BROADCAST set.
func (e *Engine) OpenBroadcast() (values.SocketHandle, error) {
	return e.openDatagram(true)
}

// OpenMulticast opens a datagram socket with the multicast TTL and loopback
// options applied. A non-positive ttl keeps the system default.
func (e *Engine) OpenMulticast(ttl int, loopback bool) (values.SocketHandle, error) {
	h, err := e.openDatagram(false)
	if err != nil {
		return 0, err
	}
	rec, err := e.arena.get(h)
	if err != nil {
		return 0, err
	}

	pc := ipv4.NewPacketConn(rec.udp)
	if ttl > 0 {
		if err := pc.SetMulticastTTL(ttl); err != nil {
			_ = e.Close(h)
			return 0, apperrors.NewSocketError("setsockopt mcast_ttl", err)
		}
	}
	if err := pc.SetMulticastLoopback(loopback); err != nil {
		_ = e.Close(h)
		return 0, apperrors.NewSocketError("setsockopt mcast_loopback", err)
	}
	return h, nil
}

func (e *Engine) openDatagram(broadcast bool) (values.SocketHandle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return 0, apperrors.NewSocketError("socket", err)
	}
	unix.CloseOnExec(fd)

	if broadcast {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			_ = unix.Close(fd)
			return 0, apperrors.NewSocketError("setsockopt bcast", err)
		}
	}

	f := os.NewFile(uintptr(fd), "udp")
	pc, err := net.FilePacketConn(f)
	_ = f.Close()
	if err != nil {
		return 0, apperrors.NewSocketError("socket", err)
	}

	h := e.arena.insert(&record{kind: values.SocketUDP, role: values.RoleDatagram, udp: pc.(*net.UDPConn)})
	e.logger.Debug("udp socket opened", "handle", h, "broadcast", broadcast)
	return h, nil
}

// Bind binds a datagram socket to addr:port. An empty or "*" address binds
// every interface.
func (e *Engine) Bind(h values.SocketHandle, addr string, port int, reuse bool) error {
	rec, err := e.datagram(h)
	if err != nil {
		return err
	}
	if err := checkPort(port); err != nil {
		return err
	}

	sa := &unix.SockaddrInet4{Port: port}
	if addr != "" && addr != "*" {
		ip := net.ParseIP(addr).To4()
		if ip == nil {
			return apperrors.NewProtocolError("bind address "+strconv.Quote(addr)+" is not an IPv4 address", nil)
		}
		copy(sa.Addr[:], ip)
	}
	return bindRecord(rec, sa, reuse)
}

func bindRecord(rec *record, sa *unix.SockaddrInet4, reuse bool) error {
	rc, err := rec.rawConn()
	if err != nil {
		return err
	}
	return control(rc, "bind", func(fd int) error {
		if reuse {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				return err
			}
		}
		return unix.Bind(fd, sa)
	})
}

// Connect fixes the default peer of a datagram socket.
func (e *Engine) Connect(h values.SocketHandle, host string, port int) error {
	rec, err := e.datagram(h)
	if err != nil {
		return err
	}
	addr, err := resolveUDP4(host, port)
	if err != nil {
		return err
	}

	rc, err := rec.rawConn()
	if err != nil {
		return err
	}
	return control(rc, "connect", func(fd int) error {
		return unix.Connect(fd, sockaddr(addr))
	})
}

// Join optionally binds port and adds membership of group on the default
// interface.
func (e *Engine) Join(h values.SocketHandle, group string, port int, reuse bool) error {
	rec, err := e.datagram(h)
	if err != nil {
		return err
	}
	ip := net.ParseIP(group).To4()
	if ip == nil || !ip.IsMulticast() {
		return apperrors.NewProtocolError("group "+strconv.Quote(group)+" is not an IPv4 multicast address", nil)
	}
	if port > 0 {
		if err := checkPort(port); err != nil {
			return err
		}
		if err := bindRecord(rec, &unix.SockaddrInet4{Port: port}, reuse); err != nil {
			return err
		}
	}

	if err := ipv4.NewPacketConn(rec.udp).JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
		return apperrors.NewSocketError("join "+group, err)
	}
	e.logger.Debug("multicast group joined", "handle", h, "group", group, "port", port)
	return nil
}

// SendTo sends one datagram to host:port.
func (e *Engine) SendTo(h values.SocketHandle, data []byte, host string, port int) (int, error) {
	rec, err := e.datagram(h)
	if err != nil {
		return 0, err
	}
	addr, err := resolveUDP4(host, port)
	if err != nil {
		return 0, err
	}
	n, err := rec.udp.WriteToUDP(data, addr)
	if err != nil {
		return n, apperrors.FromIO("sendto", err)
	}
	return n, nil
}

// RecvFrom reads one datagram and reports its sender.
func (e *Engine) RecvFrom(h values.SocketHandle, timeout time.Duration, maxSize int) ([]byte, values.Endpoint, error) {
	rec, err := e.datagram(h)
	if err != nil {
		return nil, values.Endpoint{}, err
	}

	rec.recvMu.Lock()
	defer rec.recvMu.Unlock()

	buf, err := e.buffer(rec, maxSize)
	if err != nil {
		return nil, values.Endpoint{}, err
	}
	if err := rec.udp.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, values.Endpoint{}, apperrors.FromIO("recvfrom", err)
	}
	n, from, err := rec.udp.ReadFromUDP(buf)
	if err != nil {
		return nil, values.Endpoint{}, apperrors.FromIO("recvfrom", err)
	}
	return clone(buf[:n]), endpointFromAddr(from), nil
}

func (e *Engine) datagram(h values.SocketHandle) (*record, error) {
	rec, err := e.arena.get(h)
	if err != nil {
		return nil, err
	}
	if rec.udp == nil {
		return nil, apperrors.NewProtocolError("operation requires a datagram socket", nil)
	}
	return rec, nil
}

func resolveUDP4(host string, port int) (*net.UDPAddr, error) {
	if err := checkPort(port); err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host).To4(); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, apperrors.NewSocketError("resolve "+host, err)
	}
	return addr, nil
}
