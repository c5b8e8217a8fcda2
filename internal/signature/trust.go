package signature

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"slices"
	"time"
)

// TrustStore holds the certificates a verifier accepts as signers or issuers.
type TrustStore struct {
	pool  *x509.CertPool
	certs []*x509.Certificate
	now   func() time.Time
}

// TrustStoreOption configures a TrustStore
type TrustStoreOption func(*TrustStore)

// WithCertificates seeds the store with the given certificates.
func WithCertificates(certs ...*x509.Certificate) TrustStoreOption {
	return func(s *TrustStore) {
		s.AddCertificates(certs...)
	}
}

// WithClock overrides the time used for validity checks.
func WithClock(now func() time.Time) TrustStoreOption {
	return func(s *TrustStore) {
		s.now = now
	}
}

// NewTrustStore creates an empty trust store.
func NewTrustStore(opts ...TrustStoreOption) *TrustStore {
	s := &TrustStore{
		pool: x509.NewCertPool(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadTrustStore reads one or more PEM files into a new store.
func LoadTrustStore(paths ...string) (*TrustStore, error) {
	s := NewTrustStore()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read trust file %s: %w", path, err)
		}
		if err := s.AddCertificatesFromPEM(data); err != nil {
			return nil, fmt.Errorf("trust file %s: %w", path, err)
		}
	}
	return s, nil
}

// AddCertificate adds a single certificate to the trust store
func (s *TrustStore) AddCertificate(cert *x509.Certificate) {
	if cert == nil || s.Contains(cert) {
		return
	}
	s.pool.AddCert(cert)
	s.certs = append(s.certs, cert)
}

// AddCertificates adds multiple certificates to the trust store
func (s *TrustStore) AddCertificates(certs ...*x509.Certificate) {
	for _, cert := range certs {
		s.AddCertificate(cert)
	}
}

// AddCertificatesFromPEM parses and adds every CERTIFICATE block in pemData.
func (s *TrustStore) AddCertificatesFromPEM(pemData []byte) error {
	var added int
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return fmt.Errorf("failed to parse certificate: %w", err)
			}
			s.AddCertificate(cert)
			added++
		}
		pemData = rest
	}
	if added == 0 {
		return fmt.Errorf("no certificates found in PEM data")
	}
	return nil
}

// Contains reports whether cert is itself in the store.
func (s *TrustStore) Contains(cert *x509.Certificate) bool {
	return slices.ContainsFunc(s.certs, cert.Equal)
}

// Len returns the number of trusted certificates.
func (s *TrustStore) Len() int {
	return len(s.certs)
}

// Certificates returns a copy of the trusted certificates.
func (s *TrustStore) Certificates() []*x509.Certificate {
	return slices.Clone(s.certs)
}

// VerifyChain checks that cert is trusted, directly or through a chain
// ending at a trusted root. The returned chain starts with cert.
func (s *TrustStore) VerifyChain(cert *x509.Certificate, intermediates []*x509.Certificate) ([]*x509.Certificate, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is nil")
	}

	now := s.now()
	subject := cert.Subject.String()
	if now.Before(cert.NotBefore) {
		return nil, ErrCertNotYetValid(subject)
	}
	if now.After(cert.NotAfter) {
		return nil, ErrCertExpired(subject)
	}
	if s.Contains(cert) {
		return []*x509.Certificate{cert}, nil
	}

	var interPool *x509.CertPool
	if len(intermediates) > 0 {
		interPool = x509.NewCertPool()
		for _, inter := range intermediates {
			interPool.AddCert(inter)
		}
	}

	chains, err := cert.Verify(x509.VerifyOptions{
		Roots:         s.pool,
		Intermediates: interPool,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, ErrUntrustedSigner(subject, err)
	}
	if len(chains) == 0 {
		return nil, ErrUntrustedSigner(subject, nil)
	}
	return chains[0], nil
}
