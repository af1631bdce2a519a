// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the application layer depends on but doesn't implement.
package ports

import (
	"context"
	"time"

	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// SocketInfo describes one live socket.
type SocketInfo struct {
	Kind   values.SocketKind   `json:"type"`
	Role   values.SocketRole   `json:"role"`
	Handle values.SocketHandle `json:"handle"`
	Open   bool                `json:"open"`
}

// SocketEngine owns the sockets of one session. Handles it issues are only
// meaningful to the same engine.
//
// Timeouts follow one convention everywhere: negative waits indefinitely,
// zero polls once, positive bounds the wait.
type SocketEngine interface {
	OpenTCPClient(ctx context.Context, host string, port int, timeout time.Duration) (values.SocketHandle, error)
	OpenTCPListener(port int, reuse bool) (values.SocketHandle, error)
	// Accept retires the listener handle and returns the accepted
	// connection's handle, which occupies the same slot.
	Accept(h values.SocketHandle, timeout time.Duration) (values.SocketHandle, values.Endpoint, error)

	OpenUDP() (values.SocketHandle, error)
	OpenBroadcast() (values.SocketHandle, error)
	OpenMulticast(ttl int, loopback bool) (values.SocketHandle, error)
	Bind(h values.SocketHandle, addr string, port int, reuse bool) error
	Connect(h values.SocketHandle, host string, port int) error
	Join(h values.SocketHandle, group string, port int, reuse bool) error

	Send(h values.SocketHandle, data []byte) (int, error)
	SendTo(h values.SocketHandle, data []byte, host string, port int) (int, error)
	Recv(h values.SocketHandle, timeout time.Duration, maxSize int) ([]byte, error)
	RecvFrom(h values.SocketHandle, timeout time.Duration, maxSize int) ([]byte, values.Endpoint, error)

	SetOption(h values.SocketHandle, opt values.SocketOption, value int) error
	LocalAddress(h values.SocketHandle) (values.Endpoint, error)
	PeerAddress(h values.SocketHandle) (values.Endpoint, error)
	Describe(h values.SocketHandle) (SocketInfo, error)

	Close(h values.SocketHandle) error
	// CloseAll releases every socket and returns how many were open.
	CloseAll() int
}

// SocketEngineFactory creates one engine per session.
type SocketEngineFactory interface {
	NewEngine() SocketEngine
}

// ManifestLoader reads manifest documents from storage.
type ManifestLoader interface {
	LoadManifest(path string) (manifest.SecurityManifest, error)
	LoadManifestBytes(data []byte) (manifest.SecurityManifest, error)
}

// Metrics records dispatcher activity.
type Metrics interface {
	RecordDecision(kind string, allowed bool)
	RecordCall(name string, errType values.ErrorType, elapsed time.Duration)
	SessionOpened()
	SessionClosed()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordDecision(string, bool)                        {}
func (NopMetrics) RecordCall(string, values.ErrorType, time.Duration) {}
func (NopMetrics) SessionOpened()                                     {}
func (NopMetrics) SessionClosed()                                     {}
