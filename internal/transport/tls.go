package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// TLSVerify selects how the TLS wrap layer verifies the server's
// certificate, per spec.md §4.C's {Off, Hash, Cert, System} policy.
type TLSVerify int

const (
	// TLSVerifyOff disables certificate verification entirely.
	TLSVerifyOff TLSVerify = iota
	// TLSVerifyHash pins the server certificate's SHA-256 fingerprint
	// (MonetDB's monetdbs:// certhash= parameter), bypassing name and
	// chain verification.
	TLSVerifyHash
	// TLSVerifyCert verifies the certificate chain against a supplied
	// CA pool but skips hostname verification.
	TLSVerifyCert
	// TLSVerifySystem performs full chain and hostname verification
	// against the system trust store (or ServerName/RootCAs if set).
	TLSVerifySystem
)

// TLSPolicy configures WrapTLS. CertHash is required when Verify is
// TLSVerifyHash; RootCAs and ServerName are consulted by TLSVerifyCert
// and TLSVerifySystem.
type TLSPolicy struct {
	Verify     TLSVerify
	CertHash   []byte // expected SHA-256 fingerprint, for TLSVerifyHash
	RootCAs    *x509.CertPool
	ServerName string
}

// WrapTLS performs a client-side TLS handshake over conn according to
// policy and returns the wrapped connection. TLS protocol details are
// delegated entirely to crypto/tls; only certificate verification
// policy selection is this package's concern, per spec.md's explicit
// non-goal of "no TLS protocol work."
func WrapTLS(ctx context.Context, conn net.Conn, policy TLSPolicy) (net.Conn, error) {
	cfg := &tls.Config{
		ServerName: policy.ServerName,
		RootCAs:    policy.RootCAs,
	}

	switch policy.Verify {
	case TLSVerifyOff:
		cfg.InsecureSkipVerify = true
	case TLSVerifyHash:
		if len(policy.CertHash) != sha256.Size {
			return nil, fmt.Errorf("monetdb: TLSVerifyHash requires a %d-byte SHA-256 fingerprint", sha256.Size)
		}
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyCertHash(policy.CertHash)
	case TLSVerifyCert:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(policy.RootCAs)
	case TLSVerifySystem:
		// default crypto/tls chain+hostname verification applies
	default:
		return nil, fmt.Errorf("monetdb: unknown TLS verify policy %d", policy.Verify)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	tc := tls.Client(conn, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tc, nil
}

// verifyCertHash rejects any leaf certificate whose SHA-256 fingerprint
// does not match want.
func verifyCertHash(want []byte) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("monetdb: server presented no certificate")
		}
		got := sha256.Sum256(rawCerts[0])
		if string(got[:]) != string(want) {
			return fmt.Errorf("monetdb: server certificate fingerprint mismatch")
		}
		return nil
	}
}

// verifyChainOnly verifies the presented chain against roots without
// checking the hostname.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("monetdb: server presented no certificate")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return err
		}
		opts := x509.VerifyOptions{Roots: roots}
		_, err = cert.Verify(opts)
		return err
	}
}
