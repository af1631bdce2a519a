package session

import (
	"sort"
	"sync"
)

// NeighborSet maps a discovery placeholder name to the hosts found under it.
// It only grows: hosts are never removed for the life of the session.
//
// Discovery workers write while the dispatcher reads, so access is guarded.
type NeighborSet struct {
	hosts map[string]map[string]bool
	mu    sync.RWMutex
}

// NewNeighborSet creates an empty neighbor set.
func NewNeighborSet() *NeighborSet {
	return &NeighborSet{hosts: make(map[string]map[string]bool)}
}

// Add records host under placeholder. It reports whether host was new.
func (n *NeighborSet) Add(placeholder, host string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	set, ok := n.hosts[placeholder]
	if !ok {
		set = make(map[string]bool)
		n.hosts[placeholder] = set
	}
	if set[host] {
		return false
	}
	set[host] = true
	return true
}

// Contains implements permission.NeighborView.
func (n *NeighborSet) Contains(placeholder, host string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hosts[placeholder][host]
}

// Hosts returns the hosts known under placeholder, sorted.
func (n *NeighborSet) Hosts(placeholder string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.hosts[placeholder]))
	for host := range n.hosts[placeholder] {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of (placeholder, host) pairs.
func (n *NeighborSet) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	total := 0
	for _, set := range n.hosts {
		total += len(set)
	}
	return total
}
