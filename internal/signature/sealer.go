package signature

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Sealer appends an enveloped XMLDSig signature to encoded documents.
type Sealer struct {
	keys dsig.X509KeyStore
	cert *x509.Certificate
}

// NewSealer wraps a goxmldsig key store. The store must yield an RSA key
// and a parseable signer certificate.
func NewSealer(keys dsig.X509KeyStore) (*Sealer, error) {
	if keys == nil {
		return nil, ErrInvalidKey(fmt.Errorf("key store is nil"))
	}
	_, der, err := keys.GetKeyPair()
	if err != nil {
		return nil, ErrInvalidKey(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, ErrInvalidKey(err)
	}
	return &Sealer{keys: keys, cert: cert}, nil
}

// LoadSealer reads a PEM certificate (optionally followed by its
// intermediates) and RSA private key from disk.
func LoadSealer(certFile, keyFile string) (*Sealer, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, ErrInvalidKey(err)
	}
	if _, ok := pair.PrivateKey.(*rsa.PrivateKey); !ok {
		return nil, ErrInvalidKey(fmt.Errorf("private key is %T, want RSA", pair.PrivateKey))
	}
	return NewSealer(dsig.TLSCertKeyStore(pair))
}

// Certificate returns the signer certificate.
func (s *Sealer) Certificate() *x509.Certificate {
	return s.cert
}

// Seal signs the document root and returns the serialized result. The
// signature covers the whole root element and is appended as its last child.
func (s *Sealer) Seal(data []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ErrNotXML(err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrNotXML(fmt.Errorf("no root element"))
	}
	if findSignature(root) != nil {
		return nil, ErrAlreadySigned()
	}

	signed, err := dsig.NewDefaultSigningContext(s.keys).SignEnveloped(root)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", root.Tag, err)
	}
	doc.SetRoot(signed)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize signed document: %w", err)
	}
	return out, nil
}
