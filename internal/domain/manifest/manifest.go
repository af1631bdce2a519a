// Package manifest turns a declarative security manifest into the canonical,
// query-efficient permission structure consulted on every call.
//
// A manifest has two halves. The api half is a list of dotted patterns
// (module[.submodule[.method]], any segment may be "*"). The destinations half
// is a list of [scheme://]host[:port] tokens where host may be a literal, "*",
// or a {name} placeholder filled in at runtime by discovery.
//
// Parsing is all-or-nothing: any invalid entry fails the whole manifest.
package manifest

import (
	"fmt"
	"strings"
)

// SecurityManifest is the manifest as supplied by the host for one session.
//
// A nil API slice means the api key was absent, which is distinct from an
// empty list. What an absent key means is decided by MissingAPIPolicy.
type SecurityManifest struct {
	API          []string `json:"api,omitempty" yaml:"api,omitempty" cbor:"api,omitempty"`
	Destinations []string `json:"destinations,omitempty" yaml:"destinations,omitempty" cbor:"destinations,omitempty"`
	// Requires is an optional semver constraint on the host version.
	Requires string `json:"requires,omitempty" yaml:"requires,omitempty" cbor:"requires,omitempty"`
}

// MissingAPIPolicy decides what a manifest without an api key grants.
// There is deliberately no usable zero value.
type MissingAPIPolicy int

const (
	// MissingAPIUnspecified rejects manifests that omit the api key.
	MissingAPIUnspecified MissingAPIPolicy = iota
	// MissingAPIDeny treats an absent api key as an empty grant.
	MissingAPIDeny
	// MissingAPIAllow treats an absent api key as "*".
	MissingAPIAllow
)

// ParseMissingAPIPolicy parses "deny" or "allow".
func ParseMissingAPIPolicy(s string) (MissingAPIPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deny":
		return MissingAPIDeny, nil
	case "allow":
		return MissingAPIAllow, nil
	default:
		return MissingAPIUnspecified, fmt.Errorf("missing api policy must be \"deny\" or \"allow\", got %q", s)
	}
}

// String returns the policy name
func (p MissingAPIPolicy) String() string {
	switch p {
	case MissingAPIDeny:
		return "deny"
	case MissingAPIAllow:
		return "allow"
	default:
		return "unspecified"
	}
}

// Options control parsing.
type Options struct {
	// MissingAPI must be set whenever a manifest may omit its api key.
	MissingAPI MissingAPIPolicy
	// HostVersion is checked against SecurityManifest.Requires. Versions that
	// are not valid semver (development builds) satisfy any valid constraint.
	HostVersion string
}

// ParseError reports why a manifest was rejected.
type ParseError struct {
	Field  string // "api", "destinations" or "requires"
	Entry  string // offending entry, if any
	Detail string
	Index  int
}

func (e *ParseError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("invalid manifest: %s: %s", e.Field, e.Detail)
	}
	if e.Field == "requires" {
		return fmt.Sprintf("invalid manifest: requires %q: %s", e.Entry, e.Detail)
	}
	return fmt.Sprintf("invalid manifest: %s[%d] %q: %s", e.Field, e.Index, e.Entry, e.Detail)
}

// knownModules lists the submodules each top-level module exposes.
var knownModules = map[string][]string{
	"socket": {"tcp", "udp", "broadcast", "multicast"},
	"proto":  {"http", "mdns", "upnp", "dns"},
	"tools":  {"ping", "iperf"},
	"system": {"info", "net"},
}

// IsKnownSubmodule reports whether module.submodule is part of the API surface.
func IsKnownSubmodule(module, submodule string) bool {
	for _, s := range knownModules[module] {
		if s == submodule {
			return true
		}
	}
	return false
}

// IsKnownModule reports whether module is a top-level module name.
func IsKnownModule(module string) bool {
	_, ok := knownModules[module]
	return ok
}

// isIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case i > 0 && ch >= '0' && ch <= '9':
		default:
			return false
		}
	}
	return true
}
