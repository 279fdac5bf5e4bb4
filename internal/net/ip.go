package net

import (
	"fmt"
	"net"
	"strconv"
)

// routeProbe is any routable address; dialing UDP only selects a route.
const routeProbe = "192.0.2.1:9"

// LANAddr returns the IPv4 address viewers on the local network should use.
// It prefers the source address of the default route, then the first address
// of an up, non-loopback interface, then loopback.
func LANAddr() net.IP {
	if ip := routeAddr(); ip != nil {
		return ip
	}
	if ip := interfaceAddr(); ip != nil {
		return ip
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

func routeAddr() net.IP {
	conn, err := net.Dial("udp4", routeProbe)
	if err != nil {
		return nil
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsLoopback() || addr.IP.IsUnspecified() {
		return nil
	}
	return addr.IP.To4()
}

func interfaceAddr() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return nil
}

// ShareURL is the link viewers open for a share listening on port.
func ShareURL(port int) string {
	return shareURL(LANAddr(), port)
}

func shareURL(ip net.IP, port int) string {
	return fmt.Sprintf("http://%s/", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
}
