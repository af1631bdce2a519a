package services

import (
	"context"
	"net"
	"os"
	"runtime"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/version"
)

// OSInfo is returned by system.info.getOS.
type OSInfo struct {
	OS   string `json:"os" cbor:"os"`
	Arch string `json:"arch" cbor:"arch"`
	CPUs int    `json:"cpus" cbor:"cpus"`
}

// InterfaceInfo describes one network interface.
type InterfaceInfo struct {
	Name         string   `json:"name" cbor:"name"`
	HardwareAddr string   `json:"hardware_addr,omitempty" cbor:"hardware_addr,omitempty"`
	Flags        string   `json:"flags" cbor:"flags"`
	Addrs        []string `json:"addrs" cbor:"addrs"`
	MTU          int      `json:"mtu" cbor:"mtu"`
}

// RegisterSystemModule registers system.info and system.net. None of these
// reach the network.
func RegisterSystemModule(r *Registry) {
	r.Register("system", "info", "getOS", Method{Handler: func(context.Context, *Call) (any, error) {
		return OSInfo{OS: runtime.GOOS, Arch: runtime.GOARCH, CPUs: runtime.NumCPU()}, nil
	}})
	r.Register("system", "info", "getHostname", Method{Handler: func(context.Context, *Call) (any, error) {
		name, err := os.Hostname()
		if err != nil {
			return nil, apperrors.NewSocketError("hostname", err)
		}
		return name, nil
	}})
	r.Register("system", "info", "getVersion", Method{Handler: func(context.Context, *Call) (any, error) {
		return version.Get(), nil
	}})
	r.Register("system", "net", "getInterfaces", Method{Handler: interfaces})
}

func interfaces(context.Context, *Call) (any, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, apperrors.NewSocketError("list interfaces", err)
	}

	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Name:         iface.Name,
			MTU:          iface.MTU,
			Flags:        iface.Flags.String(),
			HardwareAddr: iface.HardwareAddr.String(),
			Addrs:        []string{},
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				info.Addrs = append(info.Addrs, addr.String())
			}
		}
		out = append(out, info)
	}
	return out, nil
}
