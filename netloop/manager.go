// File: netloop/manager.go
// Manager is the process-visible container: it owns the connection list,
// the wake-up channel, the monotonic tick, and the readiness-loop entry
// point (spec §3, §4.3).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/netloop/control"
	"github.com/momentics/netloop/iobuf"
	"github.com/momentics/netloop/netaddr"
	"github.com/momentics/netloop/internal/reactor"
)

// metric is a nil-safe call-through so Manager methods don't need to
// guard every increment against an unconfigured Config.Metrics.
func (m *Manager) metric(key string, delta int64) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Incr(key, delta)
	}
}

// Manager owns a linked collection of Conns, a wake-up channel, a
// monotonic tick source (seconds, advanced once per Poll call), and the
// readiness-loop entry point. Exactly one goroutine may call Poll, any
// connection mutator, or any send/close function on a given Manager; the
// sole exception is Broadcast, documented on wakeChannel.
type Manager struct {
	cfg Config

	reactor reactor.Reactor
	wake    *wakeChannel
	wakeFD  int

	head *Conn
	tail *Conn
	size int
	byFD map[int]*Conn

	tick int64

	UserData any

	scratch []reactor.Event
	closed  bool
}

// NewManager constructs a Manager with the given options applied over
// DefaultConfig().
func NewManager(opts ...Option) (*Manager, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	r, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("netloop: new reactor: %w", err)
	}

	wake, err := newWakeChannel()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("netloop: new wake channel: %w", err)
	}
	if err := r.Add(wake.readerFD, reactor.Read); err != nil {
		r.Close()
		wake.close()
		return nil, fmt.Errorf("netloop: register wake channel: %w", err)
	}

	mgr := &Manager{
		cfg:     cfg,
		reactor: r,
		wake:    wake,
		wakeFD:  wake.readerFD,
		byFD:    make(map[int]*Conn),
		scratch: make([]reactor.Event, 0, cfg.MaxEpollEvents),
	}
	if cfg.Debug != nil {
		// Best-effort introspection: these probes may run on a different
		// goroutine than the poll loop, so the values they read are a
		// snapshot, not a synchronized one — acceptable for diagnostics,
		// not for control flow (spec §5's single-thread-owns-the-manager
		// rule still applies to every *mutating* call).
		cfg.Debug.RegisterProbe("netloop.connections", func() any { return mgr.size })
		cfg.Debug.RegisterProbe("netloop.tick", func() any { return mgr.tick })
	}
	return mgr, nil
}

// Close closes and frees every linked connection, then releases the
// reactor and wake channel. A Manager must not be used afterward.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for c := m.head; c != nil; {
		next := c.next
		m.closeConnNow(c, nil)
		c = next
	}
	m.reactor.Remove(m.wakeFD)
	m.wake.close()
	return m.reactor.Close()
}

// Tick returns the current tick value, advanced once per Poll call.
func (m *Manager) Tick() int64 { return m.tick }

// Next iterates the connection list: Next(nil) returns the first
// connection (or nil if none), and Next(c) returns the connection linked
// after c (or nil at the end).
func (m *Manager) Next(c *Conn) *Conn {
	if c == nil {
		return m.head
	}
	return c.next
}

// link appends c to the tail of the connection list.
func (m *Manager) link(c *Conn) {
	c.prev = m.tail
	c.next = nil
	if m.tail != nil {
		m.tail.next = c
	} else {
		m.head = c
	}
	m.tail = c
	m.size++
}

// unlink removes c from the connection list; it does not close the
// socket or touch the reactor.
func (m *Manager) unlink(c *Conn) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		m.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	} else {
		m.tail = c.prev
	}
	c.prev, c.next = nil, nil
	m.size--
}

func (m *Manager) newConn(fd int, flags Flags, handler EventHandler) *Conn {
	c := &Conn{
		fd:      fd,
		mgr:     m,
		Recv:    iobuf.New(),
		Send:    iobuf.New(),
		flags:   flags,
		lastIO:  m.tick,
		Handler: handler,
	}
	m.link(c)
	m.byFD[fd] = c
	m.metric(control.MetricConnectionsOpen, 1)
	m.metric(control.MetricConnectionsTotal, 1)
	return c
}

// closeConnNow delivers EvClose (if a handler is attached), unregisters the
// descriptor from the reactor, closes it, releases any TLS session, and
// unlinks the connection from the manager's list. It is the only place a
// connection's fd is actually closed (spec §4.2 end-of-iteration handling
// and the error paths of Bind/Connect/AddSocket/Close all route through it).
func (m *Manager) closeConnNow(c *Conn, err error) {
	if c.Handler != nil {
		c.connErr = err
		c.Handler.HandleEvent(c, EvClose, err)
	}
	if c.tls != nil {
		c.tls.Close()
	}
	// A UDP pseudo-connection (spec §5) shares its fd with the bound
	// listening socket it was recvfrom'd from; only the listening Conn
	// itself owns that descriptor's reactor registration and lifetime.
	if !c.udpOneShot {
		m.reactor.Remove(c.fd)
		unix.Close(c.fd)
		delete(m.byFD, c.fd)
		m.metric(control.MetricConnectionsOpen, -1)
	}
	m.unlink(c)
}

// Bind parses addr ("[proto://]host:port", host optional for bind-all)
// and creates a listening TCP or UDP socket, per spec §4.5. A failed bind
// returns a nil Conn and a non-nil error immediately (spec §7).
func (m *Manager) Bind(addr string, handler EventHandler) (*Conn, error) {
	ep, err := netaddr.ParseBind(addr)
	if err != nil {
		return nil, newError(ErrCodeSocketSetup, "parse bind address", err)
	}
	fd, err := newNonblockingSocket(ep)
	if err != nil {
		return nil, newError(ErrCodeSocketSetup, "create socket", err)
	}
	if err := doBind(fd, ep); err != nil {
		unix.Close(fd)
		return nil, newError(ErrCodeSocketSetup, "bind", err)
	}

	flags := Flags(0)
	if ep.Proto == netaddr.ProtoUDP {
		flags = FlagListening | FlagUDP
	} else {
		if err := unix.Listen(fd, 128); err != nil {
			unix.Close(fd)
			return nil, newError(ErrCodeSocketSetup, "listen", err)
		}
		flags = FlagListening
	}

	local, _ := localEndpoint(fd, ep.Proto)
	c := m.newConn(fd, flags, handler)
	c.Local = local
	if err := m.reactor.Add(fd, reactor.Read); err != nil {
		m.closeConnNow(c, nil)
		return nil, newError(ErrCodeSocketSetup, "register listener", err)
	}
	return c, nil
}

// Connect parses addr and begins a non-blocking connect, per spec §4.5.
// The handler receives EvConnect on the next Poll iteration regardless of
// whether the OS completed the connect synchronously, preserving a
// uniform "connect always completes asynchronously from the caller's
// point of view" contract for both TCP and UDP.
func (m *Manager) Connect(addr string, handler EventHandler) (*Conn, error) {
	ep, err := netaddr.Parse(addr)
	if err != nil {
		return nil, newError(ErrCodeResolve, "parse/resolve connect address", err)
	}
	fd, err := newNonblockingSocket(ep)
	if err != nil {
		return nil, newError(ErrCodeSocketSetup, "create socket", err)
	}

	err = unix.Connect(fd, sockaddrFor(ep))
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, newError(ErrCodeSocketSetup, "connect", err)
	}

	flags := Flags(FlagConnecting)
	if ep.Proto == netaddr.ProtoUDP {
		flags |= FlagUDP
	}
	c := m.newConn(fd, flags, handler)
	c.Peer = ep
	if err := m.reactor.Add(fd, reactor.Write); err != nil {
		m.closeConnNow(c, nil)
		return nil, newError(ErrCodeSocketSetup, "register connecting socket", err)
	}
	return c, nil
}

// AddSocket wraps an externally acquired socket descriptor, joining it to
// the manager's connection list under the given handler; the caller is
// responsible for its prior state (spec §4.5).
func (m *Manager) AddSocket(fd int, handler EventHandler) (*Conn, error) {
	unix.SetNonblock(fd, true)
	c := m.newConn(fd, 0, handler)
	if err := m.reactor.Add(fd, reactor.Read); err != nil {
		m.closeConnNow(c, nil)
		return nil, newError(ErrCodeSocketSetup, "register socket", err)
	}
	return c, nil
}

// Broadcast is the one Manager method safe to call from any goroutine.
// It enqueues (callback, data) and wakes the poll loop; cb is invoked as
// callback(conn, EvPoll-style delivery) for every live connection once
// the manager observes the wake-up, in list order (spec §4.4).
func (m *Manager) Broadcast(cb func(c *Conn, data any), data any) {
	m.wake.push(broadcastRecord{callback: cb, data: data})
}
