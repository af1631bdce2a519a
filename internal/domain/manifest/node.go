package manifest

import "sort"

// Wildcard is the token that matches any value at a level.
const Wildcard = "*"

// Node is one level of a permission trie. Exact children are keyed by literal
// token, the wildcard child (if any) stands for "*", and placeholder children
// are keyed by discovery placeholder name (without braces). Leaves are nodes
// with no children.
type Node struct {
	exact        map[string]*Node
	wildcard     *Node
	placeholders map[string]*Node
}

func newNode() *Node {
	return &Node{}
}

// Child returns the exact child for token.
func (n *Node) Child(token string) (*Node, bool) {
	if n == nil || n.exact == nil {
		return nil, false
	}
	child, ok := n.exact[token]
	return child, ok
}

// Wildcard returns the "*" child.
func (n *Node) Wildcard() (*Node, bool) {
	if n == nil || n.wildcard == nil {
		return nil, false
	}
	return n.wildcard, true
}

// Placeholder returns the child for placeholder name.
func (n *Node) Placeholder(name string) (*Node, bool) {
	if n == nil || n.placeholders == nil {
		return nil, false
	}
	child, ok := n.placeholders[name]
	return child, ok
}

// PlaceholderNames returns placeholder names at this level in sorted order.
func (n *Node) PlaceholderNames() []string {
	if n == nil {
		return nil
	}
	return sortedKeys(n.placeholders)
}

// IsEmpty returns true if the node has no children of any kind.
func (n *Node) IsEmpty() bool {
	return n == nil || (len(n.exact) == 0 && n.wildcard == nil && len(n.placeholders) == 0)
}

func (n *Node) ensureExact(token string) *Node {
	if n.exact == nil {
		n.exact = make(map[string]*Node)
	}
	child, ok := n.exact[token]
	if !ok {
		child = newNode()
		n.exact[token] = child
	}
	return child
}

func (n *Node) ensureWildcard() *Node {
	if n.wildcard == nil {
		n.wildcard = newNode()
	}
	return n.wildcard
}

func (n *Node) ensurePlaceholder(name string) *Node {
	if n.placeholders == nil {
		n.placeholders = make(map[string]*Node)
	}
	child, ok := n.placeholders[name]
	if !ok {
		child = newNode()
		n.placeholders[name] = child
	}
	return child
}

// paths returns every root-to-leaf token path in deterministic order.
func (n *Node) paths() [][]string {
	if n.IsEmpty() {
		return [][]string{nil}
	}

	var out [][]string
	appendChild := func(token string, child *Node) {
		for _, rest := range child.paths() {
			out = append(out, append([]string{token}, rest...))
		}
	}

	if n.wildcard != nil {
		appendChild(Wildcard, n.wildcard)
	}
	for _, k := range sortedKeys(n.exact) {
		appendChild(k, n.exact[k])
	}
	for _, k := range sortedKeys(n.placeholders) {
		appendChild("{"+k+"}", n.placeholders[k])
	}
	return out
}

// equal compares two tries structurally.
func (n *Node) equal(other *Node) bool {
	if n.IsEmpty() || other.IsEmpty() {
		return n.IsEmpty() && other.IsEmpty()
	}
	if (n.wildcard == nil) != (other.wildcard == nil) {
		return false
	}
	if n.wildcard != nil && !n.wildcard.equal(other.wildcard) {
		return false
	}
	return equalChildren(n.exact, other.exact) && equalChildren(n.placeholders, other.placeholders)
}

func equalChildren(a, b map[string]*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for k, child := range a {
		otherChild, ok := b[k]
		if !ok || !child.equal(otherChild) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
