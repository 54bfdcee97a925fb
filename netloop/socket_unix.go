//go:build !windows

// File: netloop/socket_unix.go
// Low-level socket construction helpers shared by Bind/Connect/accept.
// Grounded on the golang.org/x/sys/unix usage pattern already established
// by internal/reactor/reactor_linux.go.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/netloop/netaddr"
)

func sockaddrFor(ep netaddr.Endpoint) unix.Sockaddr {
	if ep.Family == netaddr.FamilyIPv6 {
		var a [16]byte
		copy(a[:], ep.IP.To16())
		return &unix.SockaddrInet6{Port: ep.Port, Addr: a, ZoneId: zoneIDFor(ep.Zone)}
	}
	var a [4]byte
	copy(a[:], ep.IP.To4())
	return &unix.SockaddrInet4{Port: ep.Port, Addr: a}
}

// zoneIDFor resolves an IPv6 scope name to its interface index. A zone
// that fails to resolve (or is empty) falls back to zone 0, meaning "not
// link-scoped" — acceptable since link-local addressing is a corner case
// this manager does not otherwise exercise.
func zoneIDFor(zone string) uint32 {
	if zone == "" {
		return 0
	}
	if iface, err := net.InterfaceByName(zone); err == nil {
		return uint32(iface.Index)
	}
	return 0
}

func domainFor(ep netaddr.Endpoint) int {
	if ep.Family == netaddr.FamilyIPv6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

func socketTypeFor(ep netaddr.Endpoint) int {
	if ep.Proto == netaddr.ProtoUDP {
		return unix.SOCK_DGRAM
	}
	return unix.SOCK_STREAM
}

// newNonblockingSocket creates a non-blocking, close-on-exec socket for
// the given endpoint's family/protocol.
func newNonblockingSocket(ep netaddr.Endpoint) (int, error) {
	fd, err := unix.Socket(domainFor(ep), socketTypeFor(ep), 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set close-on-exec: %w", err)
	}
	return fd, nil
}

func doBind(fd int, ep netaddr.Endpoint) error {
	if ep.Proto == netaddr.ProtoTCP {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fmt.Errorf("setsockopt reuseaddr: %w", err)
		}
	}
	if err := unix.Bind(fd, sockaddrFor(ep)); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

func localEndpoint(fd int, proto netaddr.Proto) (netaddr.Endpoint, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netaddr.Endpoint{}, err
	}
	return endpointFromSockaddr(sa, proto)
}

func endpointFromSockaddr(sa unix.Sockaddr, proto netaddr.Proto) (netaddr.Endpoint, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make([]byte, 4)
		copy(ip, v.Addr[:])
		return netaddr.Endpoint{Family: netaddr.FamilyIPv4, Proto: proto, IP: ip, Port: v.Port}, nil
	case *unix.SockaddrInet6:
		ip := make([]byte, 16)
		copy(ip, v.Addr[:])
		return netaddr.Endpoint{Family: netaddr.FamilyIPv6, Proto: proto, IP: ip, Port: v.Port}, nil
	default:
		return netaddr.Endpoint{}, fmt.Errorf("unsupported sockaddr type %T", sa)
	}
}
