package security

import "net"

// ClientFilter restricts which source subnets may query this resolver.
// An empty allowlist means every source is accepted (open-resolver mode);
// a non-empty allowlist rejects any source outside the configured
// networks, guarding against this resolver being abused as a reflector
// for clients it was never meant to serve.
type ClientFilter struct {
	allowed []net.IPNet
}

// NewClientFilter builds a filter from a set of CIDR strings (e.g.
// "10.0.0.0/8", "192.168.0.0/16"). A malformed CIDR is skipped rather
// than rejecting the whole configuration.
func NewClientFilter(cidrs []string) *ClientFilter {
	nets := make([]net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		nets = append(nets, *ipnet)
	}
	return &ClientFilter{allowed: nets}
}

// IsAllowed reports whether srcIP may be serviced. With no configured
// allowlist, every address is allowed.
func (f *ClientFilter) IsAllowed(srcIP net.IP) bool {
	if len(f.allowed) == 0 {
		return true
	}

	for _, ipnet := range f.allowed {
		if ipnet.Contains(srcIP) {
			return true
		}
	}

	return false
}

// isPrivate reports whether ip falls in one of the RFC 1918 private
// ranges. It has no caller outside this package's tests.
func isPrivate(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}

	if ip4[0] == 10 {
		return true
	}

	if ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31 {
		return true
	}

	if ip4[0] == 192 && ip4[1] == 168 {
		return true
	}

	return false
}
