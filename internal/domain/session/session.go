// Package session defines the per-session context shared by the dispatcher,
// the permission checks and the discovery agents of one caller.
package session

import (
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// Session is the context object for one caller (page or tab). It is passed by
// reference to every component acting for that caller and never shared
// across callers.
type Session struct {
	manifest  *manifest.Canonical
	neighbors *NeighborSet
	id        values.SessionID
}

// New creates a session around an already canonicalized manifest.
func New(m *manifest.Canonical) *Session {
	return &Session{
		id:        values.NewSessionID(),
		manifest:  m,
		neighbors: NewNeighborSet(),
	}
}

// ID returns the session identifier
func (s *Session) ID() values.SessionID {
	return s.id
}

// Manifest returns the session's canonical manifest
func (s *Session) Manifest() *manifest.Canonical {
	return s.manifest
}

// Neighbors returns the session's discovered neighbor set
func (s *Session) Neighbors() *NeighborSet {
	return s.neighbors
}

// AllowsAPI evaluates the api check against this session's manifest.
func (s *Session) AllowsAPI(module, submodule, method string) bool {
	return permission.CheckAPI(module, submodule, method, s.manifest)
}

// AllowsDestination evaluates the destination check against this session's
// manifest and the neighbors discovered so far.
func (s *Session) AllowsDestination(q permission.DestinationQuery) bool {
	return permission.CheckDestination(q, s.manifest, s.neighbors)
}
