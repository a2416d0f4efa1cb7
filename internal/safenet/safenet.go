package safenet

import (
	"fmt"
	"net"
	"strings"
	"syscall"
)

var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"192.88.99.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"224.0.0.0/4",
		"240.0.0.0/4",
		"255.255.255.255/32",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, ipNet, _ := net.ParseCIDR(cidr)
		privateRanges = append(privateRanges, ipNet)
	}
}

// IsPrivateIP reports whether ip is in a private or reserved range.
func IsPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, r := range privateRanges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// DialControl is a net.Dialer Control function that blocks connections to
// private/reserved IP addresses. It is called after DNS resolution, before
// the connection is established.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("blocked: invalid address %q", address)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("blocked: could not parse IP %q", host)
	}
	if IsPrivateIP(ip) {
		return fmt.Errorf("blocked: connections to private/reserved IP %s are not allowed", ip)
	}
	return nil
}

// Guard decides per-target whether the private-IP restriction applies.
// AllowlistHosts holds exact hostnames (case-insensitive) that are exempt,
// for deployments that deliberately probe internal targets.
type Guard struct {
	AllowPrivate   bool
	AllowlistHosts []string
}

// Control returns the dialer Control function for a target hostname, or nil
// when the guard does not apply to it.
func (g Guard) Control(host string) func(string, string, syscall.RawConn) error {
	if g.AllowPrivate {
		return nil
	}
	for _, h := range g.AllowlistHosts {
		if strings.EqualFold(h, host) {
			return nil
		}
	}
	return DialControl
}
