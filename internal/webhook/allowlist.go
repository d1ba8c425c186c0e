package webhook

import (
	"fmt"
	"net"
)

// AllowList restricts webhook sources to known provider addresses.
// An empty list allows everything (useful in development).
type AllowList struct {
	nets []*net.IPNet
}

// NewAllowList parses a list of CIDR blocks or plain IPs.
func NewAllowList(entries []string) (*AllowList, error) {
	al := &AllowList{}
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			al.nets = append(al.nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("webhook: invalid allow-list entry %q", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		al.nets = append(al.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return al, nil
}

// Allowed reports whether the remote IP may deliver webhooks.
func (al *AllowList) Allowed(remoteIP string) bool {
	if len(al.nets) == 0 {
		return true
	}
	ip := net.ParseIP(remoteIP)
	if ip == nil {
		return false
	}
	for _, n := range al.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
