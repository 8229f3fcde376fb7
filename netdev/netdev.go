// Package netdev resolves interface names against the host's network
// directory. It is the only OS surface the service consumes besides the
// AF_XDP and netlink sockets.
package netdev

import (
	"fmt"
	"net"
)

// Interface describes one host network interface.
type Interface struct {
	Name  string
	Index int
	MAC   net.HardwareAddr
	Up    bool
}

// LookupIndex resolves an interface name to its index.
func LookupIndex(name string) (int, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("interface %q: %w", name, err)
	}
	return ifi.Index, nil
}

// Interfaces enumerates the host's interfaces.
func Interfaces() ([]Interface, error) {
	ifis, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifis))
	for _, ifi := range ifis {
		out = append(out, Interface{
			Name:  ifi.Name,
			Index: ifi.Index,
			MAC:   ifi.HardwareAddr,
			Up:    ifi.Flags&net.FlagUp != 0,
		})
	}
	return out, nil
}
