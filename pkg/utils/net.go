package utils

import "net"

// HostAddresses lists the IPv4 addresses of the interfaces that are up,
// loopback excluded. It returns nil when the interfaces cannot be read.
func HostAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var addrs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		list, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range list {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					addrs = append(addrs, ip4.String())
				}
			}
		}
	}
	return addrs
}
