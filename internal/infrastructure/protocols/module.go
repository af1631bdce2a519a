package protocols

import "github.com/reglet-dev/netgate/internal/application/services"

// Register adds proto.dns and proto.http to the registry.
func Register(r *services.Registry) {
	r.Register("proto", "dns", "lookup", services.Method{Handler: lookup, Destination: dnsDestination})
	r.Register("proto", "http", "get", services.Method{Handler: httpGet, Destination: httpGetDestination})
}
