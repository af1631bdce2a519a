package manifest

import "strings"

// Canonical is the normalized form of a SecurityManifest. It is immutable once
// built and safe for concurrent readers.
//
// The api trie has up to three levels (module, submodule, method). A wildcard
// child at any level grants everything below it. The destination trie has
// exactly three levels (scheme, host, port).
type Canonical struct {
	api      *Node
	dst      *Node
	requires string
}

// API returns the root of the api trie.
func (c *Canonical) API() *Node {
	return c.api
}

// Destinations returns the root of the destination trie.
func (c *Canonical) Destinations() *Node {
	return c.dst
}

// Placeholders returns the discovery placeholder names referenced by any
// destination, sorted and without duplicates.
func (c *Canonical) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	collect := func(scheme *Node) {
		for _, name := range scheme.PlaceholderNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if c.dst.wildcard != nil {
		collect(c.dst.wildcard)
	}
	for _, k := range sortedKeys(c.dst.exact) {
		collect(c.dst.exact[k])
	}
	return sortStrings(names)
}

// Manifest renders the canonical structure back into manifest form. Parsing
// the result yields a structure Equal to c.
func (c *Canonical) Manifest() SecurityManifest {
	m := SecurityManifest{
		API:          []string{},
		Destinations: []string{},
		Requires:     c.requires,
	}
	if !c.api.IsEmpty() {
		for _, path := range c.api.paths() {
			m.API = append(m.API, strings.Join(path, "."))
		}
	}
	if !c.dst.IsEmpty() {
		for _, path := range c.dst.paths() {
			m.Destinations = append(m.Destinations, formatDestination(path[0], path[1], path[2]))
		}
	}
	return m
}

// Equal reports whether two canonical manifests grant exactly the same things.
func (c *Canonical) Equal(other *Canonical) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.requires == other.requires && c.api.equal(other.api) && c.dst.equal(other.dst)
}

func formatDestination(scheme, host, port string) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host + ":" + port
}
