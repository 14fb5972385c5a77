/*-------------------------------------------------------------------------
 *
 * ipallow.go
 *    Client address resolution and CIDR allow-listing
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/security/ipallow.go
 *
 *-------------------------------------------------------------------------
 */

package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

/* ErrInvalidIP is returned when an address cannot be parsed */
var ErrInvalidIP = errors.New("invalid IP address")

/* IPAllowlist holds the set of networks permitted to call the API */
type IPAllowlist struct {
	prefixes []netip.Prefix
	logger   *logging.Logger
}

/* NewIPAllowlist parses CIDR strings; any malformed entry is an error */
func NewIPAllowlist(cidrs []string, logger *logging.Logger) (*IPAllowlist, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR range %q: %w", c, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return &IPAllowlist{prefixes: prefixes, logger: logger}, nil
}

/* Ranges returns the configured networks in CIDR notation */
func (a *IPAllowlist) Ranges() []string {
	out := make([]string, len(a.prefixes))
	for i, p := range a.prefixes {
		out[i] = p.String()
	}
	return out
}

/* Check returns nil when ip belongs to an allowed network */
func (a *IPAllowlist) Check(ip string) error {
	addr, err := ParseIP(ip)
	if err != nil {
		return err
	}
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return nil
		}
	}
	return fmt.Errorf("address %s is not in an allowed range", addr)
}

/* Allowed reports whether ip is permitted; unparseable addresses are refused */
func (a *IPAllowlist) Allowed(ip string) bool {
	err := a.Check(ip)
	if errors.Is(err, ErrInvalidIP) {
		a.logger.Warn("Invalid IP address", map[string]interface{}{
			"ip_address": logging.Truncate(ip, logPreviewLength),
		})
	}
	return err == nil
}

/* ParseIP parses a bare address, dropping any zone and unmapping IPv4-in-IPv6 */
func ParseIP(ip string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return addr.WithZone("").Unmap(), nil
}

/*
 * ClientIP resolves the caller address. With trustProxy the first
 * X-Forwarded-For entry wins, then X-Real-IP; otherwise, or when neither
 * header is present, the socket address is used.
 */
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
