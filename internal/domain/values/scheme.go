package values

import "fmt"

// Scheme is the transport family of a destination.
type Scheme string

const (
	SchemeTCP       Scheme = "tcp"
	SchemeUDP       Scheme = "udp"
	SchemeMulticast Scheme = "multicast"
	SchemeBroadcast Scheme = "broadcast"
	// SchemeAny matches every scheme when it appears in a manifest.
	SchemeAny Scheme = "*"
)

// ParseScheme parses a scheme token. An empty string yields SchemeAny,
// matching the manifest grammar where the scheme may be omitted.
func ParseScheme(s string) (Scheme, error) {
	if s == "" {
		return SchemeAny, nil
	}
	scheme := Scheme(s)
	if err := scheme.Validate(); err != nil {
		return "", err
	}
	return scheme, nil
}

// Validate returns an error if the scheme is not part of the known set
func (s Scheme) Validate() error {
	switch s {
	case SchemeTCP, SchemeUDP, SchemeMulticast, SchemeBroadcast, SchemeAny:
		return nil
	default:
		return fmt.Errorf("unknown scheme: %q", string(s))
	}
}

// String returns the scheme token
func (s Scheme) String() string {
	return string(s)
}
