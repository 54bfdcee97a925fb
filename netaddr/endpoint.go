// File: netaddr/endpoint.go
// Package netaddr implements address parsing and endpoint formatting for
// the connection manager: a tagged union over IPv4/IPv6 socket addresses,
// with a blocking name-resolution hook.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netaddr

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Proto is the transport protocol named in an address string.
type Proto int

const (
	// ProtoTCP selects stream sockets.
	ProtoTCP Proto = iota
	// ProtoUDP selects datagram sockets.
	ProtoUDP
)

func (p Proto) String() string {
	if p == ProtoUDP {
		return "udp"
	}
	return "tcp"
}

// Family distinguishes the two endpoint shapes of the tagged union.
type Family int

const (
	// FamilyIPv4 marks a 4-byte address.
	FamilyIPv4 Family = iota
	// FamilyIPv6 marks a 16-byte address, with an optional zone (scope).
	FamilyIPv6
)

// Endpoint is a tagged union over IPv4 and IPv6 socket addresses, as
// described in spec §3: {IPv4(port, 4 bytes), IPv6(port, 16 bytes, scope)}.
type Endpoint struct {
	Family Family
	Proto  Proto
	IP     net.IP // 4 bytes for FamilyIPv4, 16 bytes for FamilyIPv6
	Port   int
	Zone   string // IPv6 scope id, empty unless Family == FamilyIPv6
}

// Resolver performs the blocking DNS lookup used when a parsed host is not
// already a numeric literal. It is the external collaborator named in
// spec §1; the default implementation below uses the standard library.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]net.IP, error)
}

// stdResolver adapts net.DefaultResolver to the Resolver contract.
type stdResolver struct{}

func (stdResolver) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// DefaultResolver is the blocking resolver used by Parse when no Resolver
// is supplied explicitly.
var DefaultResolver Resolver = stdResolver{}

// Parse accepts "[proto://]host:port" and returns the resolved Endpoint.
// proto defaults to tcp when omitted. host is mandatory; port may be "0"
// to let the OS assign one. A non-numeric host triggers a single
// synchronous resolver lookup, per spec §4.5.
func Parse(addr string) (Endpoint, error) {
	return ParseWithResolver(addr, DefaultResolver)
}

// ParseWithResolver is Parse with an explicit resolver, primarily for tests.
func ParseWithResolver(addr string, resolver Resolver) (Endpoint, error) {
	proto := ProtoTCP
	rest := addr
	if idx := strings.Index(addr, "://"); idx >= 0 {
		switch strings.ToLower(addr[:idx]) {
		case "tcp":
			proto = ProtoTCP
		case "udp":
			proto = ProtoUDP
		default:
			return Endpoint{}, fmt.Errorf("netaddr: unknown proto %q", addr[:idx])
		}
		rest = addr[idx+3:]
	}

	host, portStr, err := splitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("netaddr: %w", err)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("netaddr: host is mandatory in %q", addr)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("netaddr: invalid port %q", portStr)
	}

	ip := net.ParseIP(host)
	var zone string
	if idx := strings.IndexByte(host, '%'); idx >= 0 && ip == nil {
		zone = host[idx+1:]
		ip = net.ParseIP(host[:idx])
	}

	if ip == nil {
		if resolver == nil {
			resolver = DefaultResolver
		}
		ips, rerr := resolver.LookupHost(context.Background(), host)
		if rerr != nil {
			return Endpoint{}, fmt.Errorf("netaddr: resolve %q: %w", host, rerr)
		}
		if len(ips) == 0 {
			return Endpoint{}, fmt.Errorf("netaddr: resolve %q: no addresses returned", host)
		}
		ip = ips[0]
	}

	return fromIP(ip, port, zone, proto)
}

// splitHostPort is net.SplitHostPort unchanged: an IPv6 literal must be
// bracketed and the port is required. The bare-port bind-all form is
// handled separately by ParseBind.
func splitHostPort(rest string) (host, port string, err error) {
	return net.SplitHostPort(rest)
}

func fromIP(ip net.IP, port int, zone string, proto Proto) (Endpoint, error) {
	if v4 := ip.To4(); v4 != nil {
		return Endpoint{Family: FamilyIPv4, Proto: proto, IP: v4, Port: port}, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return Endpoint{}, fmt.Errorf("netaddr: address %v is neither IPv4 nor IPv6", ip)
	}
	return Endpoint{Family: FamilyIPv6, Proto: proto, IP: v6, Port: port, Zone: zone}, nil
}

// ParseBind is like Parse but tolerates an empty host (bind-all) and a
// bare ":port" form, per spec §4.5's bind().
func ParseBind(addr string) (Endpoint, error) {
	proto := ProtoTCP
	rest := addr
	if idx := strings.Index(addr, "://"); idx >= 0 {
		switch strings.ToLower(addr[:idx]) {
		case "tcp":
			proto = ProtoTCP
		case "udp":
			proto = ProtoUDP
		default:
			return Endpoint{}, fmt.Errorf("netaddr: unknown proto %q", addr[:idx])
		}
		rest = addr[idx+3:]
	}
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		// Allow a bare port, e.g. "9000", meaning bind-all on that port.
		if _, aerr := strconv.Atoi(rest); aerr == nil {
			host, portStr = "", rest
		} else {
			return Endpoint{}, fmt.Errorf("netaddr: %w", err)
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("netaddr: invalid port %q", portStr)
	}
	if host == "" {
		return Endpoint{Family: FamilyIPv4, Proto: proto, IP: net.IPv4zero.To4(), Port: port}, nil
	}
	return Parse(fmt.Sprintf("%s://%s", proto, net.JoinHostPort(host, portStr)))
}

// String formats the endpoint back into "host:port" form (IPv6 addresses
// are bracketed); the protocol tag is not re-emitted since it is carried
// out-of-band by the socket type.
func (e Endpoint) String() string {
	host := e.IP.String()
	if e.Family == FamilyIPv6 && e.Zone != "" {
		host += "%" + e.Zone
	}
	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}

// NetString returns the net package's network name ("tcp4", "tcp6", "udp4",
// "udp6") for use with low-level socket construction.
func (e Endpoint) NetString() string {
	suffix := "4"
	if e.Family == FamilyIPv6 {
		suffix = "6"
	}
	return e.Proto.String() + suffix
}

// IsUnspecified reports whether the endpoint's address is the unspecified
// (bind-all) address, 0.0.0.0 or ::.
func (e Endpoint) IsUnspecified() bool { return e.IP.IsUnspecified() }
