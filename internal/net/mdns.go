package net

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_screenspec._tcp"

// ErrNoPeers is returned by Browse when nothing answered.
var ErrNoPeers = errors.New("no shared screens found")

// Peer is a share found on the local network.
type Peer struct {
	Instance string
	Addr     string
	ScreenID string
	Title    string
}

// Advertise announces a share on the local network until the returned server
// is shut down.
func Advertise(instance string, port int, screenID, title string) (*mdns.Server, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}
	info := []string{"screen=" + screenID, "title=" + title}

	var ips []net.IP
	if ip := LANAddr(); !ip.IsLoopback() {
		ips = []net.IP{ip}
	}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse queries the local network for shares for the given duration.
func Browse(timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []Peer)
	go func() {
		var peers []Peer
		seen := make(map[string]bool)
		for e := range entries {
			if p, ok := peerFromEntry(e); ok && !seen[p.Addr] {
				seen[p.Addr] = true
				peers = append(peers, p)
			}
		}
		done <- peers
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	params.Logger = log.New(io.Discard, "", 0)
	err := mdns.Query(params)
	close(entries)
	peers := <-done
	if err != nil {
		return peers, fmt.Errorf("mdns query: %w", err)
	}
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	return peers, nil
}

func peerFromEntry(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	p := Peer{
		Instance: strings.TrimSuffix(e.Name, "."+ServiceType+".local."),
		Addr:     fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port),
	}
	for _, field := range e.InfoFields {
		key, value, _ := strings.Cut(field, "=")
		switch key {
		case "screen":
			p.ScreenID = value
		case "title":
			p.Title = value
		}
	}
	return p, true
}
