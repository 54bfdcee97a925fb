// File: tlsbridge/session.go
// Package tlsbridge adapts the standard library's crypto/tls behind the
// ready/wantread/wantwrite contract spec §6 asks of "the TLS provider":
//
//	tls_new(cert, ca_cert, is_server) -> session | error
//	tls_handshake(session, socket) -> {done, want_read, want_write, error}
//	tls_read/tls_write(session, buf, n) -> {n, want_read, want_write, closed, error}
//
// crypto/tls's own API is blocking, built around net.Conn. To expose it
// through the dispatcher's non-blocking, single-threaded pump without
// forcing the whole manager onto goroutines, each Session runs one
// internal pump goroutine (plus, once the handshake succeeds, one reader
// goroutine it starts) driving a real *tls.Conn over an in-memory duplex
// byte pipe (shim below); the dispatcher feeds ciphertext in and drains
// ciphertext out every iteration and only ever observes the bridge's
// state through non-blocking channel receives and short mutex-guarded
// calls on the shim, so "exactly one
// thread may call poll, any connection mutator, or any send/close
// function" still holds from the manager's point of view (spec §5).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package tlsbridge

import (
	"crypto/tls"
	"fmt"
	"io"
)

// Session wraps one TLS connection's handshake and application-data
// pumping.
type Session struct {
	conn *tls.Conn
	shim *shim

	handshakeDone bool
	handshakeErr  error
	handshakeCh   chan error

	plaintextIn  chan []byte // decrypted application bytes, pump -> dispatcher
	plaintextOut chan []byte // application bytes to encrypt, dispatcher -> pump
	writeErrCh   chan error
	closed       bool
}

// New constructs a Session. certPath/keyPath (server) or caPath (client)
// are PEM files, per spec §6 ("Certificates are PEM; server PEM
// concatenates certificate and private key."); isServer selects which
// half of the handshake this side plays.
func New(certPath, keyPath, caPath string, isServer bool) (*Session, error) {
	cfg, err := buildConfig(certPath, keyPath, caPath, isServer)
	if err != nil {
		return nil, fmt.Errorf("tlsbridge: %w", err)
	}

	s := &shim{}
	s.init()

	var tconn *tls.Conn
	if isServer {
		tconn = tls.Server(s, cfg)
	} else {
		tconn = tls.Client(s, cfg)
	}

	sess := &Session{
		conn:         tconn,
		shim:         s,
		handshakeCh:  make(chan error, 1),
		plaintextIn:  make(chan []byte, 64),
		plaintextOut: make(chan []byte, 64),
		writeErrCh:   make(chan error, 64),
	}
	go sess.pump()
	return sess, nil
}

// pump runs the blocking crypto/tls handshake, then shuttles plaintext
// to/from the dispatcher via channels for the life of the connection.
func (s *Session) pump() {
	err := s.conn.Handshake()
	s.handshakeCh <- err
	if err != nil {
		return
	}

	// Application-data phase: one reader sub-goroutine, writes serviced
	// inline so ordering of writes is preserved without extra locking.
	readErrCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := s.conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.plaintextIn <- chunk
			}
			if rerr != nil {
				readErrCh <- rerr
				return
			}
		}
	}()

	for {
		select {
		case p, ok := <-s.plaintextOut:
			if !ok {
				return
			}
			_, werr := s.conn.Write(p)
			s.writeErrCh <- werr
		case rerr := <-readErrCh:
			if rerr == io.EOF || rerr == nil {
				return
			}
			// Record the read failure on the shim so Closed() reports it.
			s.shim.setFatal(rerr)
			return
		}
	}
}

// Feed delivers ciphertext read from the socket into the session.
func (s *Session) Feed(ciphertext []byte) {
	s.shim.feedInbound(ciphertext)
}

// DrainOutbound returns (and clears) ciphertext the TLS stack has
// produced and needs written to the socket.
func (s *Session) DrainOutbound() []byte {
	return s.shim.drainOutbound()
}

// HasOutbound reports whether ciphertext is waiting to be written to the
// socket, so the dispatcher can arm write readiness even when the
// connection's own send buffer is empty (the pump goroutine can produce
// outbound records asynchronously, e.g. TLS session tickets or alerts).
func (s *Session) HasOutbound() bool {
	return s.shim.hasOutbound()
}

// PollHandshake performs a non-blocking check of handshake progress.
// done reports completion; wantRead/wantWrite are best-effort hints
// (crypto/tls does not expose granular want-state, so both are reported
// true while pending, matching the "try both directions" behavior most
// level-triggered readiness loops fall back to).
func (s *Session) PollHandshake() (done, wantRead, wantWrite bool, err error) {
	if s.handshakeDone {
		return true, false, false, s.handshakeErr
	}
	select {
	case err = <-s.handshakeCh:
		s.handshakeDone = true
		s.handshakeErr = err
		return true, false, false, err
	default:
		return false, true, true, nil
	}
}

// Write queues plaintext for encryption; the resulting ciphertext appears
// via DrainOutbound on a subsequent iteration once the pump goroutine has
// processed it.
func (s *Session) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	s.plaintextOut <- cp
	select {
	case err := <-s.writeErrCh:
		return err
	default:
		return nil
	}
}

// ReadPlaintext drains any decrypted application bytes the pump goroutine
// has produced since the last call; ok is false when none are pending.
func (s *Session) ReadPlaintext() (data []byte, ok bool) {
	select {
	case data = <-s.plaintextIn:
		return data, true
	default:
		return nil, false
	}
}

// Closed reports whether a fatal record-layer error occurred, and returns
// that error. A clean close by the peer (io.EOF from the TLS stream) ends
// the pump goroutine without being recorded, so it is not reported here.
func (s *Session) Closed() (bool, error) {
	return s.shim.fatal()
}

// Close releases the session's resources.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.plaintextOut)
	return s.conn.Close()
}

func buildConfig(certPath, keyPath, caPath string, isServer bool) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if isServer {
		if certPath == "" || keyPath == "" {
			return nil, fmt.Errorf("server TLS requires both cert and key PEM paths")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load server keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	} else if caPath != "" {
		pool, err := loadCAPool(caPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
		// spec §6's tls_new contract carries no hostname (only
		// cert/ca_cert/is_server), so there is no ServerName for
		// crypto/tls's default hostname-matching verifier to check
		// against. Verify the certificate chain against the supplied CA
		// pool explicitly instead, deliberately skipping hostname
		// matching rather than disabling certificate verification
		// altogether.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			return verifyChainAgainstPool(cs.PeerCertificates, pool)
		}
	}
	return cfg, nil
}
