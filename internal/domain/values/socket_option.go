package values

import "fmt"

// SocketOption names a settable socket option. The vocabulary is closed:
// anything outside it is rejected rather than passed through to the OS.
type SocketOption string

const (
	// OptionReuseAddr toggles SO_REUSEADDR
	OptionReuseAddr SocketOption = "reuseaddr"
	// OptionBroadcast toggles SO_BROADCAST
	OptionBroadcast SocketOption = "bcast"
	// OptionMulticastTTL sets IP_MULTICAST_TTL
	OptionMulticastTTL SocketOption = "mcast_ttl"
	// OptionMulticastLoopback toggles IP_MULTICAST_LOOP
	OptionMulticastLoopback SocketOption = "mcast_loopback"
)

// ParseSocketOption parses an option name, rejecting unknown names.
func ParseSocketOption(name string) (SocketOption, error) {
	opt := SocketOption(name)
	switch opt {
	case OptionReuseAddr, OptionBroadcast, OptionMulticastTTL, OptionMulticastLoopback:
		return opt, nil
	default:
		return "", fmt.Errorf("unsupported socket option: %q", name)
	}
}

// IsBoolean returns true if the option takes an on/off value
func (o SocketOption) IsBoolean() bool {
	return o != OptionMulticastTTL
}
