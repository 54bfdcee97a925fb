// File: netloop/dispatcher.go
// Poll is the readiness loop described in spec §4.3: build interest,
// block in the reactor, service ready descriptors in a fixed order, walk
// every connection once with EvPoll, run pending broadcasts, and finally
// apply end-of-iteration flag transitions.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/netloop/control"
	"github.com/momentics/netloop/iobuf"
	"github.com/momentics/netloop/internal/reactor"
	"github.com/momentics/netloop/netaddr"
)

// Poll runs one iteration of the readiness loop. timeoutMs is passed
// through to the reactor's Wait (0 = non-blocking, <0 = block
// indefinitely). It returns the tick value observed at the start of the
// iteration.
func (m *Manager) Poll(timeoutMs int) (int64, error) {
	if m.closed {
		return m.tick, fmt.Errorf("netloop: poll on closed manager")
	}
	m.tick = time.Now().Unix()
	m.metric(control.MetricPollIterations, 1)

	for c := m.head; c != nil; c = c.next {
		if err := m.reactor.Modify(c.fd, m.interestFor(c)); err != nil {
			c.connErr = newError(ErrCodeRuntimeIO, "rearm interest", err)
			c.flags = c.flags.Set(FlagCloseImmediately)
		}
	}

	events, err := m.reactor.Wait(timeoutMs, m.scratch)
	if err != nil {
		return m.tick, newError(ErrCodeRuntimeIO, "reactor wait", err)
	}

	for _, ev := range events {
		if ev.Fd == m.wakeFD {
			m.wake.drainWakeBytes()
			continue
		}
		c := m.byFD[ev.Fd]
		if c == nil {
			continue
		}
		m.service(c, ev)
	}

	for c := m.head; c != nil; c = c.next {
		c.deliver(EvPoll, nil)
	}

	m.drainBroadcasts()

	c := m.head
	for c != nil {
		next := c.next
		if c.flags.Has(FlagFinishedSendingData) && !c.flags.Has(FlagCloseImmediately) && c.Send.Len() == 0 {
			c.flags = c.flags.Set(FlagCloseImmediately)
		}
		if c.flags.Has(FlagCloseImmediately) {
			m.closeConnNow(c, c.connErr)
		}
		c = next
	}

	return m.tick, nil
}

// deliver is a nil-safe call-through to c.Handler.HandleEvent.
func (c *Conn) deliver(ev Event, payload any) {
	if c.Handler != nil {
		c.Handler.HandleEvent(c, ev, payload)
	}
}

// interestFor computes the read/write interest a connection needs for the
// next Wait call.
func (m *Manager) interestFor(c *Conn) reactor.Interest {
	if c.flags.Has(FlagListening) {
		return reactor.Read
	}
	if c.flags.Has(FlagConnecting) {
		return reactor.Write
	}

	var i reactor.Interest
	if !c.flags.Has(FlagCloseImmediately) {
		i |= reactor.Read
	}
	switch {
	case c.tls != nil && !c.flags.Has(FlagTLSHandshakeDone):
		i |= reactor.Read | reactor.Write
	case c.tls != nil:
		if (c.Send.Len() > 0 && !c.flags.Has(FlagBufferButDontSend)) || c.tls.HasOutbound() {
			i |= reactor.Write
		}
	case c.Send.Len() > 0 && !c.flags.Has(FlagBufferButDontSend):
		i |= reactor.Write
	}
	return i
}

// service handles one ready descriptor's event in the order spec §4.3
// prescribes: listener accept, connect completion, TLS handshake
// progression, then plaintext read/write.
func (m *Manager) service(c *Conn, ev reactor.Event) {
	if c.flags.Has(FlagListening) {
		if ev.Ready&reactor.Read != 0 {
			m.acceptLoop(c)
		}
		return
	}

	// A connecting socket's error/hangup (e.g. ECONNREFUSED) still must
	// resolve through completeConnect so the handler observes EvConnect
	// with the real SO_ERROR before CLOSE, per spec §7 ("a failed connect
	// arrives as CONNECT with non-zero code, followed by CLOSE") — an
	// early generic-error return here would skip EvConnect entirely.
	if c.flags.Has(FlagConnecting) {
		if ev.Ready&reactor.Write != 0 || ev.Err {
			m.completeConnect(c)
		}
		return
	}

	if ev.Err {
		c.connErr = newError(ErrCodeRuntimeIO, "socket error", nil)
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}

	if c.tls != nil && !c.flags.Has(FlagTLSHandshakeDone) {
		m.pumpTLSHandshake(c, ev)
		return
	}

	if c.tls != nil {
		m.pumpTLSData(c, ev)
		return
	}

	if ev.Ready&reactor.Read != 0 {
		if c.flags.Has(FlagUDP) {
			m.handleUDPRead(c)
		} else {
			m.handleTCPRead(c)
		}
	}
	if ev.Ready&reactor.Write != 0 && !c.flags.Has(FlagCloseImmediately) {
		m.handleWrite(c)
	}
}

// acceptLoop drains a listening socket's backlog (TCP accept4, or a UDP
// recvfrom producing one pseudo-connection per datagram) until EAGAIN.
func (m *Manager) acceptLoop(lc *Conn) {
	if lc.flags.Has(FlagUDP) {
		m.acceptUDPLoop(lc)
		return
	}
	for {
		fd, sa, err := unix.Accept4(lc.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err != unix.EAGAIN {
				lc.deliver(EvProtocolError, newError(ErrCodeRuntimeIO, "accept", err))
			}
			return
		}
		peer, _ := endpointFromSockaddr(sa, netaddr.ProtoTCP)
		local, _ := localEndpoint(fd, netaddr.ProtoTCP)
		c := m.newConn(fd, 0, lc.Handler)
		c.Peer = peer
		c.Local = local
		if err := m.reactor.Add(fd, reactor.Read); err != nil {
			m.closeConnNow(c, newError(ErrCodeSocketSetup, "register accepted socket", err))
			continue
		}
		c.deliver(EvAccept, peer)
	}
}

// acceptUDPLoop reads datagrams off a bound UDP socket, synthesizing an
// ephemeral pseudo-connection per sender that lives for one iteration
// unless the handler sets FlagUser1 (spec §5, resolved per DESIGN.md).
func (m *Manager) acceptUDPLoop(lc *Conn) {
	buf := make([]byte, m.cfg.InitialRecvReserve)
	for {
		n, sa, err := unix.Recvfrom(lc.fd, buf, 0)
		if err != nil {
			if err != unix.EAGAIN {
				lc.deliver(EvProtocolError, newError(ErrCodeRuntimeIO, "recvfrom", err))
			}
			return
		}
		peer, _ := endpointFromSockaddr(sa, netaddr.ProtoUDP)
		recv := iobuf.New()
		recv.Append(buf[:n])
		c := &Conn{
			fd:         lc.fd,
			mgr:        m,
			Recv:       recv,
			Send:       iobuf.New(),
			flags:      FlagUDP,
			lastIO:     m.tick,
			Handler:    lc.Handler,
			Peer:       peer,
			Local:      lc.Local,
			udpOneShot: true,
		}
		m.link(c)
		c.deliver(EvAccept, peer)
		c.deliver(EvRecv, n)
		if !c.flags.Has(FlagUser1) {
			m.closeConnNow(c, nil)
		}
	}
}

// completeConnect checks SO_ERROR after a writable event on a connecting
// socket, clears FlagConnecting, and delivers EvConnect.
func (m *Manager) completeConnect(c *Conn) {
	c.flags = c.flags.Clear(FlagConnecting)
	soErr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	var connErr error
	if err != nil {
		connErr = newError(ErrCodeRuntimeIO, "getsockopt so_error", err)
	} else if soErr != 0 {
		connErr = newError(ErrCodeRuntimeIO, "connect failed", unix.Errno(soErr))
	}
	if local, lerr := localEndpoint(c.fd, c.Peer.Proto); lerr == nil {
		c.Local = local
	}
	c.deliver(EvConnect, connErr)
	if connErr != nil {
		c.connErr = connErr
		c.flags = c.flags.Set(FlagCloseImmediately)
	}
}

// pumpTLSHandshake feeds/drains the tlsbridge session and polls for
// handshake completion; plaintext read/write servicing begins only after
// FlagTLSHandshakeDone is set on a later iteration.
func (m *Manager) pumpTLSHandshake(c *Conn, ev reactor.Event) {
	if ev.Ready&reactor.Read != 0 {
		buf := make([]byte, m.cfg.InitialRecvReserve)
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.tls.Feed(buf[:n])
		}
		if err != nil && err != unix.EAGAIN {
			c.connErr = newError(ErrCodeTLS, "tls handshake read", err)
			c.flags = c.flags.Set(FlagCloseImmediately)
			return
		}
		if n == 0 && err == nil {
			c.flags = c.flags.Set(FlagCloseImmediately)
			return
		}
	}

	if out := c.tls.DrainOutbound(); len(out) > 0 {
		writeRaw(c.fd, out)
	}

	done, _, _, herr := c.tls.PollHandshake()
	if done {
		c.flags = c.flags.Set(FlagTLSHandshakeDone)
		c.deliver(EvConnect, herr)
		if herr != nil {
			c.connErr = newError(ErrCodeTLS, "tls handshake", herr)
			c.flags = c.flags.Set(FlagCloseImmediately)
		}
	}
}

// pumpTLSData services a TLS connection's application-data phase, once
// FlagTLSHandshakeDone is set: ciphertext observed on the socket is fed
// to the bridge session, decrypted application bytes are appended to
// Recv and delivered as EvRecv, the send buffer is handed to the session
// for encryption and delivered as EvSend, and any ciphertext the session
// has produced (from this write or an earlier one) is flushed to the
// socket. This keeps the plaintext contract (RECV/SEND byte counts,
// send/recv buffer invariants) identical to a plain TCP connection (spec
// §8), with crypto/tls's pump goroutine doing the actual encryption.
func (m *Manager) pumpTLSData(c *Conn, ev reactor.Event) {
	if ev.Ready&reactor.Read != 0 {
		buf := make([]byte, m.cfg.InitialRecvReserve)
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.tls.Feed(buf[:n])
		}
		if err != nil && err != unix.EAGAIN {
			c.connErr = newError(ErrCodeTLS, "tls read", err)
			c.flags = c.flags.Set(FlagCloseImmediately)
			return
		}
		if n == 0 && err == nil {
			c.flags = c.flags.Set(FlagCloseImmediately)
			return
		}
	}

	if closed, cerr := c.tls.Closed(); closed {
		if cerr != nil {
			c.connErr = newError(ErrCodeTLS, "tls session closed", cerr)
		}
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}

	total := 0
	for {
		data, ok := c.tls.ReadPlaintext()
		if !ok {
			break
		}
		if _, err := c.Recv.Append(data); err != nil {
			c.connErr = newError(ErrCodeResourceExhausted, "reserve recv buffer", err)
			c.flags = c.flags.Set(FlagCloseImmediately)
			return
		}
		total += len(data)
	}
	if total > 0 {
		c.lastIO = m.tick
		m.deliverRecv(c, total)
	}

	if c.Send.Len() > 0 && !c.flags.Has(FlagBufferButDontSend) {
		n := c.Send.Len()
		if err := c.tls.Write(c.Send.Bytes()); err != nil {
			c.connErr = newError(ErrCodeTLS, "tls write", err)
			c.flags = c.flags.Set(FlagCloseImmediately)
			return
		}
		c.Send.RemoveHead(n)
		c.lastIO = m.tick
		m.metric(control.MetricBytesSent, int64(n))
		c.deliver(EvSend, n)
	}

	if out := c.tls.DrainOutbound(); len(out) > 0 {
		writeRaw(c.fd, out)
	}
}

// handleTCPRead performs one non-blocking read directly into the
// connection's receive buffer tail, sets FlagCloseImmediately on a
// zero-length read (peer half-close; EvClose follows at the end of the
// iteration), and otherwise runs the protocol handler before the raw
// EvRecv delivery.
func (m *Manager) handleTCPRead(c *Conn) {
	if err := c.Recv.Reserve(m.cfg.InitialRecvReserve); err != nil {
		c.connErr = newError(ErrCodeResourceExhausted, "reserve recv buffer", err)
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	n, err := unix.Read(c.fd, c.Recv.Tail())
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.connErr = newError(ErrCodeRuntimeIO, "read", err)
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	if n == 0 {
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	c.Recv.Commit(n)
	c.lastIO = m.tick
	m.deliverRecv(c, n)
}

// handleUDPRead is invoked only for a connected (via Connect) UDP socket;
// a bound/listening UDP socket is serviced by acceptUDPLoop instead.
func (m *Manager) handleUDPRead(c *Conn) {
	if err := c.Recv.Reserve(m.cfg.InitialRecvReserve); err != nil {
		c.connErr = newError(ErrCodeResourceExhausted, "reserve recv buffer", err)
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	n, _, err := unix.Recvfrom(c.fd, c.Recv.Tail(), 0)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.connErr = newError(ErrCodeRuntimeIO, "recvfrom", err)
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	c.Recv.Commit(n)
	c.lastIO = m.tick
	m.deliverRecv(c, n)
}

// deliverRecv gives the connection's protocol handler (if any) first look
// at the newly received bytes, suppressing the raw EvRecv delivery when it
// reports full ownership (design note §9).
func (m *Manager) deliverRecv(c *Conn, n int) {
	m.metric(control.MetricBytesRecv, int64(n))
	if c.proto != nil && c.proto.OnRecv(c, n) {
		return
	}
	c.deliver(EvRecv, n)
}

// handleWrite flushes as much of the send buffer as the socket accepts in
// one non-blocking write, delivering EvSend for the bytes actually sent.
func (m *Manager) handleWrite(c *Conn) {
	if c.Send.Len() == 0 {
		return
	}
	n, err := unix.Write(c.fd, c.Send.Bytes())
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.connErr = newError(ErrCodeRuntimeIO, "write", err)
		c.flags = c.flags.Set(FlagCloseImmediately)
		return
	}
	if n > 0 {
		c.Send.RemoveHead(n)
		c.lastIO = m.tick
		m.metric(control.MetricBytesSent, int64(n))
		c.deliver(EvSend, n)
	}
}

// drainBroadcasts services every pending Broadcast record, invoking cb for
// each live connection in list order (spec §4.4).
func (m *Manager) drainBroadcasts() {
	for {
		rec, ok := m.wake.drainOne()
		if !ok {
			return
		}
		for c := m.head; c != nil; c = c.next {
			rec.callback(c, rec.data)
		}
	}
}

// writeRaw makes a best-effort non-blocking write of ciphertext produced by
// a TLS handshake; a short or failed write is tolerated because the next
// Poll iteration will re-arm write interest and retry via DrainOutbound.
func writeRaw(fd int, p []byte) {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err != nil || n <= 0 {
			return
		}
		p = p[n:]
	}
}
