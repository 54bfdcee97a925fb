// File: tlsbridge/shim.go
// shim is the in-memory duplex byte pipe a Session's *tls.Conn runs over:
// it implements net.Conn with Read draining dispatcher-fed ciphertext and
// Write accumulating ciphertext for the dispatcher to drain, guarded by a
// condition variable instead of unbuffered channels so neither side can
// deadlock the other on a single short read/write.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package tlsbridge

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/momentics/netloop/iobuf"
)

type shim struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inbound  iobuf.Buffer
	outbound iobuf.Buffer
	closed   bool
	fatalErr error
}

func (s *shim) init() {
	s.cond = sync.NewCond(&s.mu)
}

// feedInbound appends dispatcher-observed ciphertext and wakes any Read
// blocked waiting for it.
func (s *shim) feedInbound(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	s.inbound.Append(p)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// drainOutbound returns and clears ciphertext accumulated by Write.
func (s *shim) drainOutbound() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbound.Len() == 0 {
		return nil
	}
	out := make([]byte, s.outbound.Len())
	copy(out, s.outbound.Bytes())
	s.outbound.Reset()
	return out
}

// hasOutbound reports whether ciphertext is waiting to be drained.
func (s *shim) hasOutbound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbound.Len() > 0
}

func (s *shim) setFatal(err error) {
	s.mu.Lock()
	s.fatalErr = err
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *shim) fatal() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr != nil, s.fatalErr
}

// Read implements net.Conn, blocking the pump goroutine (never the
// dispatcher) until ciphertext is available or the shim is closed.
func (s *shim) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inbound.Len() == 0 && !s.closed && s.fatalErr == nil {
		s.cond.Wait()
	}
	if s.fatalErr != nil {
		return 0, s.fatalErr
	}
	if s.inbound.Len() == 0 && s.closed {
		return 0, io.EOF
	}
	n := copy(p, s.inbound.Bytes())
	s.inbound.RemoveHead(n)
	return n, nil
}

// Write implements net.Conn, always accepting the full buffer into the
// outbound accumulator (the dispatcher, not this shim, applies
// backpressure by way of the connection's own send buffer).
func (s *shim) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.outbound.Append(p)
	s.cond.Broadcast()
	s.mu.Unlock()
	return len(p), nil
}

func (s *shim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func (s *shim) LocalAddr() net.Addr                { return shimAddr{} }
func (s *shim) RemoteAddr() net.Addr               { return shimAddr{} }
func (s *shim) SetDeadline(time.Time) error        { return nil }
func (s *shim) SetReadDeadline(time.Time) error     { return nil }
func (s *shim) SetWriteDeadline(time.Time) error    { return nil }

type shimAddr struct{}

func (shimAddr) Network() string { return "tlsbridge" }
func (shimAddr) String() string  { return "tlsbridge-internal" }
