package manifest

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/reglet-dev/netgate/internal/domain/values"
)

const maxPort = 65535

// Parse canonicalizes raw. On any violation it returns a *ParseError and no
// manifest; there is no partially usable result.
func Parse(raw SecurityManifest, opts Options) (*Canonical, error) {
	c := &Canonical{
		api: newNode(),
		dst: newNode(),
	}

	if err := checkRequires(raw.Requires, opts.HostVersion); err != nil {
		return nil, err
	}
	c.requires = strings.TrimSpace(raw.Requires)

	if raw.API == nil {
		switch opts.MissingAPI {
		case MissingAPIAllow:
			c.api.ensureWildcard()
		case MissingAPIDeny:
		default:
			return nil, &ParseError{Field: "api", Detail: "api key is absent and no missing-api policy was given"}
		}
	}

	for i, pattern := range raw.API {
		if err := addAPIPattern(c.api, pattern); err != nil {
			return nil, &ParseError{Field: "api", Index: i, Entry: pattern, Detail: err.Error()}
		}
	}

	for i, token := range raw.Destinations {
		if err := addDestination(c.dst, token); err != nil {
			return nil, &ParseError{Field: "destinations", Index: i, Entry: token, Detail: err.Error()}
		}
	}

	return c, nil
}

type detailError string

func (e detailError) Error() string { return string(e) }

func addAPIPattern(root *Node, pattern string) error {
	segments := strings.Split(strings.TrimSpace(pattern), ".")
	if pattern == "" || len(segments) > 3 {
		return detailError("pattern must have one to three segments")
	}

	for i, seg := range segments {
		if seg != Wildcard && !isIdentifier(seg) {
			return detailError("segment " + strconv.Quote(seg) + " is not an identifier or \"*\"")
		}
		if i > 0 && segments[i-1] == Wildcard && seg != Wildcard {
			return detailError("segments after a wildcard must also be wildcards")
		}
	}

	module := segments[0]
	if module == Wildcard {
		root.ensureWildcard()
		return nil
	}
	if !IsKnownModule(module) {
		return detailError("unknown module " + strconv.Quote(module))
	}
	moduleNode := root.ensureExact(module)
	if len(segments) == 1 || segments[1] == Wildcard {
		moduleNode.ensureWildcard()
		return nil
	}

	submodule := segments[1]
	if !IsKnownSubmodule(module, submodule) {
		return detailError("unknown submodule " + strconv.Quote(module+"."+submodule))
	}
	subNode := moduleNode.ensureExact(submodule)
	if len(segments) == 2 || segments[2] == Wildcard {
		subNode.ensureWildcard()
		return nil
	}

	subNode.ensureExact(segments[2])
	return nil
}

// splitDestination decomposes [scheme://]host[:port].
func splitDestination(token string) (scheme, host, port string, err error) {
	rest := strings.TrimSpace(token)
	if rest == "" {
		return "", "", "", detailError("empty destination")
	}

	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = rest[:idx]
		rest = rest[idx+3:]
		if scheme == "" {
			return "", "", "", detailError("empty scheme before \"://\"")
		}
	}

	switch {
	case strings.HasPrefix(rest, "["):
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", "", "", detailError("unterminated \"[\" in host")
		}
		host = rest[1:end]
		tail := rest[end+1:]
		switch {
		case tail == "":
		case strings.HasPrefix(tail, ":"):
			port = tail[1:]
			if port == "" {
				return "", "", "", detailError("empty port")
			}
		default:
			return "", "", "", detailError("unexpected text after \"]\"")
		}
	case strings.Count(rest, ":") > 1:
		// Bare IPv6 literal, no port.
		host = rest
	default:
		host = rest
		if idx := strings.LastIndex(rest, ":"); idx >= 0 {
			host = rest[:idx]
			port = rest[idx+1:]
			if port == "" {
				return "", "", "", detailError("empty port")
			}
		}
	}

	if host == "" {
		return "", "", "", detailError("empty host")
	}
	if strings.ContainsAny(host, "/ \t") {
		return "", "", "", detailError("host contains invalid characters")
	}
	return scheme, host, port, nil
}

func addDestination(root *Node, token string) error {
	rawScheme, host, rawPort, err := splitDestination(token)
	if err != nil {
		return err
	}

	schemeNode, err := schemeChild(root, rawScheme)
	if err != nil {
		return err
	}

	hostNode, err := hostChild(schemeNode, host)
	if err != nil {
		return err
	}

	port, err := canonicalPort(rawPort)
	if err != nil {
		return err
	}
	if port == Wildcard {
		hostNode.ensureWildcard()
	} else {
		hostNode.ensureExact(port)
	}
	return nil
}

func schemeChild(root *Node, raw string) (*Node, error) {
	scheme, err := values.ParseScheme(raw)
	if err != nil {
		return nil, detailError("unknown scheme " + strconv.Quote(raw))
	}
	if scheme == values.SchemeAny {
		return root.ensureWildcard(), nil
	}
	return root.ensureExact(scheme.String()), nil
}

func hostChild(schemeNode *Node, host string) (*Node, error) {
	if host == Wildcard {
		return schemeNode.ensureWildcard(), nil
	}
	if strings.HasPrefix(host, "{") || strings.HasSuffix(host, "}") {
		name, ok := placeholderName(host)
		if !ok {
			return nil, detailError("malformed placeholder " + strconv.Quote(host))
		}
		return schemeNode.ensurePlaceholder(name), nil
	}
	return schemeNode.ensureExact(host), nil
}

func placeholderName(host string) (string, bool) {
	if len(host) < 3 || host[0] != '{' || host[len(host)-1] != '}' {
		return "", false
	}
	name := host[1 : len(host)-1]
	return name, isIdentifier(name)
}

// canonicalPort validates a port token and returns "*" or its decimal form.
func canonicalPort(port string) (string, error) {
	if port == "" || port == Wildcard {
		return Wildcard, nil
	}
	for _, ch := range port {
		if ch < '0' || ch > '9' {
			return "", detailError("port " + strconv.Quote(port) + " is not a number")
		}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n > maxPort {
		return "", detailError("port " + strconv.Quote(port) + " is out of range 0-65535")
	}
	return strconv.Itoa(n), nil
}

func checkRequires(requires, hostVersion string) error {
	requires = strings.TrimSpace(requires)
	if requires == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(requires)
	if err != nil {
		return &ParseError{Field: "requires", Entry: requires, Detail: "not a valid version constraint: " + err.Error()}
	}

	version, err := semver.NewVersion(hostVersion)
	if err != nil {
		return nil
	}
	if !constraint.Check(version) {
		return &ParseError{Field: "requires", Entry: requires, Detail: "host version " + hostVersion + " does not satisfy constraint"}
	}
	return nil
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
