// File: netloop/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/netloop/iobuf"
	"github.com/momentics/netloop/netaddr"
	"github.com/momentics/netloop/tlsbridge"
)

// closedFD marks a Conn whose socket has already been released.
const closedFD = -1

// Conn is the opaque per-socket handle described in spec §3: a socket, an
// owning manager back-reference, flags, two I/O buffers, a user event
// handler, optional user pointer, optional TLS session, timestamps, and a
// protocol handler slot. A Conn never outlives its Manager and must not
// be retained by application code past its EvClose delivery.
type Conn struct {
	fd    int
	mgr   *Manager
	prev  *Conn
	next  *Conn

	Recv *iobuf.Buffer
	Send *iobuf.Buffer

	flags  Flags
	lastIO int64

	Handler  EventHandler
	UserData any

	proto ProtocolHandler
	tls   *tlsbridge.Session

	Peer  netaddr.Endpoint
	Local netaddr.Endpoint

	// connErr carries the result of a non-blocking connect or a
	// just-observed runtime I/O failure through to end-of-iteration
	// handling, without requiring the dispatcher to re-derive it.
	connErr error

	// udpOneShot marks a UDP pseudo-connection created to surface one
	// datagram's sender address (spec §5); it lives for one iteration
	// unless the handler sets FlagUser1 to keep it alive, per the
	// resolved Open Question in spec §9 / DESIGN.md.
	udpOneShot bool
}

// Flags returns the connection's current flag bitset.
func (c *Conn) Flags() Flags { return c.flags }

// SetFlags ORs mask into the connection's flags. Only the user-settable
// bits listed in spec §4.2/§6 should be set by application code; setting
// manager-owned bits from a handler has undefined effect on the next
// iteration.
func (c *Conn) SetFlags(mask Flags) { c.flags = c.flags.Set(mask) }

// ClearFlags ANDs mask out of the connection's flags.
func (c *Conn) ClearFlags(mask Flags) { c.flags = c.flags.Clear(mask) }

// FD returns the underlying OS socket descriptor, or a negative sentinel
// once the connection has been closed.
func (c *Conn) FD() int { return c.fd }

// Manager returns the owning Manager. This is a back-reference only: a
// Conn does not keep its Manager alive.
func (c *Conn) Manager() *Manager { return c.mgr }

// LastIO returns the manager's tick value at the time of this
// connection's most recent I/O event, for caller-implemented idle
// timeouts (spec §5: "check last_io in a POLL handler").
func (c *Conn) LastIO() int64 { return c.lastIO }

// SetProtocolHandler attaches (or clears, with nil) the protocol layer
// that gets first look at newly received bytes.
func (c *Conn) SetProtocolHandler(p ProtocolHandler) { c.proto = p }

// EnableTLS wraps the connection in a TLS session (spec §6's set_ssl):
// certPath/keyPath are required for a server-side connection, caPath is an
// optional client verification root. The handshake itself runs on the
// tlsbridge pump goroutine and is driven forward by the dispatcher once per
// Poll iteration until FlagTLSHandshakeDone is set.
func (c *Conn) EnableTLS(certPath, keyPath, caPath string, isServer bool) error {
	sess, err := tlsbridge.New(certPath, keyPath, caPath, isServer)
	if err != nil {
		return newError(ErrCodeTLS, "enable tls", err)
	}
	c.tls = sess
	return nil
}

// SendBytes queues p for delivery. A UDP socket transmits it immediately,
// bypassing the send buffer (spec §5); otherwise (including a TLS
// connection, whose plaintext is handed to the bridge session and whose
// ciphertext is pumped to the socket by pumpTLSData) it is appended to
// the send buffer, so byte accounting and the EvSend delivery stay
// uniform across plain and TLS connections (spec §8).
func (c *Conn) SendBytes(p []byte) (int, error) {
	if c.flags.Has(FlagUDP) {
		return c.sendUDPImmediate(p)
	}
	return c.Send.Append(p)
}

// Printf formats and queues a string exactly as SendBytes would.
func (c *Conn) Printf(format string, args ...any) (int, error) {
	return c.SendBytes([]byte(fmt.Sprintf(format, args...)))
}

// sendUDPImmediate transmits p to c.Peer without buffering, per spec §5.
func (c *Conn) sendUDPImmediate(p []byte) (int, error) {
	sa := sockaddrFor(c.Peer)
	if err := unix.Sendto(c.fd, p, 0, sa); err != nil {
		return 0, newError(ErrCodeRuntimeIO, "udp sendto", err)
	}
	return len(p), nil
}
