// Package security holds response hardening headers, client address
// resolution and a passive probe detector for the API.
package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Resolver extracts the client address, trusting forwarding headers only
// when the direct peer is a trusted proxy.
type Resolver struct {
	trusted []*net.IPNet
}

// DefaultTrustedProxies are loopback and the RFC 1918 ranges.
var DefaultTrustedProxies = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

func NewResolver(cidrs []string) (*Resolver, error) {
	r := &Resolver{}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", c, err)
		}
		r.trusted = append(r.trusted, network)
	}
	return r, nil
}

func (r *Resolver) isTrusted(ip net.IP) bool {
	for _, n := range r.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating client address of req.
func (r *Resolver) ClientIP(req *http.Request) string {
	direct, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		direct = req.RemoteAddr
	}
	ip := net.ParseIP(direct)
	if ip == nil || !r.isTrusted(ip) {
		return direct
	}

	// Walk X-Forwarded-For right to left, skipping our own proxies.
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := net.ParseIP(strings.TrimSpace(hops[i]))
			if hop == nil {
				break
			}
			if !r.isTrusted(hop) || i == 0 {
				return hop.String()
			}
		}
	}
	if xri := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); xri != nil {
		return xri.String()
	}
	return direct
}
