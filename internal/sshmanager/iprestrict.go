package sshmanager

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
)

// ParseAllowedIPs parses a comma-separated list of IPs and CIDR ranges.
// Single IPs become /32 (IPv4) or /128 (IPv6) networks. Empty input returns
// nil (allow-all).
func ParseAllowedIPs(allowList string) ([]*net.IPNet, error) {
	allowList = strings.TrimSpace(allowList)
	if allowList == "" {
		return nil, nil
	}

	var networks []*net.IPNet
	for _, part := range strings.Split(allowList, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			networks = append(networks, network)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address %q", entry)
		}
		var mask net.IPMask
		if ip.To4() != nil {
			mask = net.CIDRMask(32, 32)
		} else {
			mask = net.CIDRMask(128, 128)
		}
		networks = append(networks, &net.IPNet{IP: ip.Mask(mask), Mask: mask})
	}
	return networks, nil
}

// HostPolicy restricts which remote hosts may be dialed. Hostnames are
// resolved and every resolved address must fall inside the allow list.
type HostPolicy struct {
	networks []*net.IPNet
	lookup   func(ctx context.Context, host string) ([]net.IPAddr, error)
	timeout  time.Duration
}

// NewHostPolicy parses allowList. An empty list allows every host.
func NewHostPolicy(allowList string) (*HostPolicy, error) {
	networks, err := ParseAllowedIPs(allowList)
	if err != nil {
		return nil, fmt.Errorf("invalid allow list: %w", err)
	}
	return &HostPolicy{
		networks: networks,
		lookup:   net.DefaultResolver.LookupIPAddr,
		timeout:  5 * time.Second,
	}, nil
}

// Restricted reports whether the policy limits anything.
func (p *HostPolicy) Restricted() bool {
	return p != nil && len(p.networks) > 0
}

// Allow returns nil if host may be dialed. It fits sshconn.Options.AllowHost.
func (p *HostPolicy) Allow(host string) error {
	if !p.Restricted() {
		return nil
	}
	host = strings.Trim(strings.TrimSpace(host), "[]")

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		addrs, err := p.lookup(ctx, host)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", logutil.SanitizeForLog(host), err)
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
		if len(ips) == 0 {
			return fmt.Errorf("resolve %s: no addresses", logutil.SanitizeForLog(host))
		}
	}

	for _, ip := range ips {
		if !p.contains(ip) {
			return fmt.Errorf("host %s (%s) is not in the allowed list", logutil.SanitizeForLog(host), ip)
		}
	}
	return nil
}

func (p *HostPolicy) contains(ip net.IP) bool {
	for _, network := range p.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// NormalizeAllowList validates and normalizes a comma-separated IP/CIDR list.
func NormalizeAllowList(allowList string) (string, error) {
	networks, err := ParseAllowedIPs(allowList)
	if err != nil {
		return "", err
	}
	normalized := make([]string, 0, len(networks))
	for _, n := range networks {
		ones, bits := n.Mask.Size()
		if ones == bits {
			normalized = append(normalized, n.IP.String())
		} else {
			normalized = append(normalized, n.String())
		}
	}
	return strings.Join(normalized, ", "), nil
}
