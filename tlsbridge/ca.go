// File: tlsbridge/ca.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package tlsbridge

import (
	"crypto/x509"
	"fmt"
	"os"
)

// verifyChainAgainstPool checks that the leaf of peerCerts chains to
// roots, without matching any particular hostname (see buildConfig).
func verifyChainAgainstPool(peerCerts []*x509.Certificate, roots *x509.CertPool) error {
	if len(peerCerts) == 0 {
		return fmt.Errorf("tlsbridge: server presented no certificate")
	}
	intermediates := x509.NewCertPool()
	for _, c := range peerCerts[1:] {
		intermediates.AddCert(c)
	}
	_, err := peerCerts[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	})
	if err != nil {
		return fmt.Errorf("tlsbridge: verify peer certificate: %w", err)
	}
	return nil
}

func loadCAPool(caPath string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert %q: %w", caPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("parse CA cert %q: no certificates found", caPath)
	}
	return pool, nil
}
