// Package permission holds the pure decision functions evaluated before any
// call runs. Decisions depend only on their arguments: the query, the
// canonical manifest and a read-only view of discovered neighbors.
package permission

import (
	"strconv"

	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// DestinationQuery describes the network endpoint a call would reach.
type DestinationQuery struct {
	Proto values.Scheme `json:"proto"`
	Host  string        `json:"host"`
	Port  int           `json:"port"`
}

// String renders the query in destination-token form.
func (q DestinationQuery) String() string {
	return string(q.Proto) + "://" + q.Host + ":" + strconv.Itoa(q.Port)
}

// NeighborView answers whether discovery found host under placeholder.
type NeighborView interface {
	Contains(placeholder, host string) bool
}

// CheckAPI reports whether module.submodule.method is granted.
func CheckAPI(module, submodule, method string, m *manifest.Canonical) bool {
	if m == nil {
		return false
	}
	root := m.API()
	if _, ok := root.Wildcard(); ok {
		return true
	}

	moduleNode, ok := root.Child(module)
	if !ok {
		return false
	}
	if _, ok := moduleNode.Wildcard(); ok {
		return true
	}

	subNode, ok := moduleNode.Child(submodule)
	if !ok {
		return false
	}
	if _, ok := subNode.Wildcard(); ok {
		return true
	}

	_, ok = subNode.Child(method)
	return ok
}

// CheckDestination reports whether q is granted by m. The scheme, host and
// port levels are each resolved by exact match first, then wildcard; the host
// level additionally falls back to any placeholder whose discovered set
// contains q.Host. Matching is exact-string only.
func CheckDestination(q DestinationQuery, m *manifest.Canonical, neighbors NeighborView) bool {
	if m == nil || q.Port < 0 || q.Port > 65535 {
		return false
	}

	schemeNode, ok := resolve(m.Destinations(), string(q.Proto))
	if !ok {
		return false
	}

	port := strconv.Itoa(q.Port)

	if hostNode, ok := resolve(schemeNode, q.Host); ok {
		return hasPort(hostNode, port)
	}

	if neighbors == nil {
		return false
	}
	for _, name := range schemeNode.PlaceholderNames() {
		if !neighbors.Contains(name, q.Host) {
			continue
		}
		hostNode, _ := schemeNode.Placeholder(name)
		if hasPort(hostNode, port) {
			return true
		}
	}
	return false
}

func resolve(n *manifest.Node, token string) (*manifest.Node, bool) {
	if child, ok := n.Child(token); ok {
		return child, true
	}
	return n.Wildcard()
}

func hasPort(hostNode *manifest.Node, port string) bool {
	_, ok := resolve(hostNode, port)
	return ok
}
