package values

import (
	"fmt"
	"strconv"
)

// SocketHandle is an opaque, generation-checked reference to one socket slot.
// The low 32 bits select a slot, the high 32 bits carry the slot generation at
// the time the handle was issued. A handle whose generation no longer matches
// its slot is invalid.
type SocketHandle uint64

// NewSocketHandle packs a slot index and generation.
func NewSocketHandle(slot, generation uint32) SocketHandle {
	return SocketHandle(uint64(generation)<<32 | uint64(slot))
}

// Slot returns the slot index
func (h SocketHandle) Slot() uint32 {
	return uint32(h)
}

// Generation returns the slot generation the handle was issued for
func (h SocketHandle) Generation() uint32 {
	return uint32(h >> 32)
}

// IsZero returns true for the never-issued handle
func (h SocketHandle) IsZero() bool {
	return h == 0
}

// String returns the handle as a decimal string
func (h SocketHandle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// SocketKind is the transport of a socket.
type SocketKind string

const (
	SocketTCP SocketKind = "tcp"
	SocketUDP SocketKind = "udp"
)

// SocketRole describes how a socket came to exist.
type SocketRole string

const (
	RoleClient   SocketRole = "client"
	RoleListener SocketRole = "listener"
	RoleAccepted SocketRole = "accepted"
	RoleDatagram SocketRole = "datagram"
)

// Endpoint is an address/port pair as returned to callers.
type Endpoint struct {
	Address string `json:"address" cbor:"address"`
	Port    int    `json:"port" cbor:"port"`
}

// String renders host:port
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}
