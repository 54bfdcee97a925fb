// File: tlsbridge/session_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package tlsbridge_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/netloop/tlsbridge"
)

// generateSelfSigned writes a throwaway ECDSA cert/key pair (and returns
// the same cert as its own CA) to dir, for exercising the tlsbridge
// handshake contract without a real CA.
func generateSelfSigned(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("create cert file: %v", err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	defer keyOut.Close()
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		t.Fatalf("encode key: %v", err)
	}
	return certPath, keyPath
}

// pumpUntilHandshakeDone shuttles bytes the "a" session has queued for the wire
// into "b"'s inbound feed, and vice versa, simulating the dispatcher's
// per-iteration Feed/DrainOutbound pairing (spec §6's ready/want contract)
// until both sides report handshake done or the deadline elapses.
func pumpUntilHandshakeDone(t *testing.T, a, b *tlsbridge.Session, deadline time.Duration) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if out := a.DrainOutbound(); len(out) > 0 {
			b.Feed(out)
		}
		if out := b.DrainOutbound(); len(out) > 0 {
			a.Feed(out)
		}
		doneA, _, _, errA := a.PollHandshake()
		doneB, _, _, errB := b.PollHandshake()
		if doneA && doneB {
			if errA != nil {
				t.Fatalf("side a handshake error: %v", errA)
			}
			if errB != nil {
				t.Fatalf("side b handshake error: %v", errB)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("handshake did not complete within %s", deadline)
}

func TestHandshakeAndPlaintextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := generateSelfSigned(t, dir)

	server, err := tlsbridge.New(certPath, keyPath, "", true)
	if err != nil {
		t.Fatalf("new server session: %v", err)
	}
	defer server.Close()

	client, err := tlsbridge.New("", "", certPath, false)
	if err != nil {
		t.Fatalf("new client session: %v", err)
	}
	defer client.Close()

	pumpUntilHandshakeDone(t, client, server, 2*time.Second)

	if err := client.Write([]byte("hello from client")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if out := client.DrainOutbound(); len(out) > 0 {
			server.Feed(out)
		}
		if data, ok := server.ReadPlaintext(); ok {
			got = append(got, data...)
		}
		if string(got) == "hello from client" {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if string(got) != "hello from client" {
		t.Fatalf("got %q, want %q", got, "hello from client")
	}
}

func TestNewServerRequiresCertAndKey(t *testing.T) {
	if _, err := tlsbridge.New("", "", "", true); err == nil {
		t.Fatalf("expected an error constructing a server session without cert/key")
	}
}
