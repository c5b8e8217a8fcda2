package signature

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	dsig "github.com/russellhaering/goxmldsig"
)

// XMLDSigNamespace is the namespace of ds:Signature and its children.
const XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"

// Verifier checks enveloped signatures against a trust store.
type Verifier struct {
	trust  *TrustStore
	logger zerolog.Logger
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithVerifierLogger sets the logger used for verification outcomes.
func WithVerifierLogger(logger zerolog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a verifier trusting the certificates in ts.
func NewVerifier(ts *TrustStore, opts ...VerifierOption) *Verifier {
	if ts == nil {
		ts = NewTrustStore()
	}
	v := &Verifier{trust: ts, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature embedded in data. An error is returned only
// when the input is not XML or carries no signature; every other failure is
// recorded on the result.
func (v *Verifier) Verify(ctx context.Context, data []byte) (*VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ErrNotXML(err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrNotXML(fmt.Errorf("no root element"))
	}

	result := NewVerificationResult()
	result.Root = root.Tag

	sig := findSignature(root)
	if sig == nil {
		result.AddError("no signature element found")
		return result, ErrNoSignature()
	}
	result.SignatureFound = true

	certs, err := embeddedCertificates(sig)
	if err != nil {
		result.AddError(fmt.Sprintf("signer certificate: %v", err))
		result.ComputeValidity()
		return result, nil
	}
	signer := certs[0]
	result.SetSigner(signer)

	// goxmldsig only accepts a signer certificate that is one of its roots,
	// so the signature itself is checked against the embedded certificate
	// and trust is decided separately below.
	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{signer},
	})
	if err := coversRoot(root, sig); err != nil {
		result.AddError(ErrInvalidSignature(err).Error())
	} else if validated, err := vctx.Validate(root); err != nil {
		result.AddError(ErrInvalidSignature(err).Error())
	} else if validated == nil || validated.Space != root.Space || validated.Tag != root.Tag {
		result.AddError(ErrInvalidSignature(errNotRoot).Error())
	} else {
		result.SignatureValid = true
	}

	if v.trust.Len() == 0 {
		result.AddError(ErrNoTrustedRoots().Error())
	} else if chain, err := v.trust.VerifyChain(signer, certs[1:]); err != nil {
		result.AddError(err.Error())
	} else {
		result.CertChain = chain
		result.CertChainValid = true
		if len(chain) == 1 {
			result.AddWarning("signer certificate is trusted directly")
		}
	}

	result.ComputeValidity()
	v.logger.Debug().
		Str("root", result.Root).
		Bool("valid", result.Valid).
		Bool("signature_valid", result.SignatureValid).
		Bool("chain_valid", result.CertChainValid).
		Msg("signature verified")
	return result, nil
}

// findSignature returns the first ds:Signature element at or below el.
func findSignature(el *etree.Element) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == "Signature" && child.NamespaceURI() == XMLDSigNamespace {
			return child
		}
		if found := findSignature(child); found != nil {
			return found
		}
	}
	return nil
}

var errNotRoot = errors.New("signature does not cover the document root")

// coversRoot requires every Reference of sig to point at the whole document,
// either by an empty URI or by the root's ID.
func coversRoot(root, sig *etree.Element) error {
	info := dsChild(sig, "SignedInfo")
	if info == nil {
		return fmt.Errorf("no SignedInfo element")
	}
	id := root.SelectAttrValue(dsig.DefaultIdAttr, "")
	refs := 0
	for _, ref := range info.ChildElements() {
		if ref.Tag != "Reference" || ref.NamespaceURI() != XMLDSigNamespace {
			continue
		}
		refs++
		uri := ref.SelectAttrValue("URI", "")
		if uri == "" || (id != "" && uri == "#"+id) {
			continue
		}
		return errNotRoot
	}
	if refs == 0 {
		return fmt.Errorf("no Reference element")
	}
	return nil
}

func dsChild(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == XMLDSigNamespace {
			return child
		}
	}
	return nil
}

// embeddedCertificates parses KeyInfo/X509Data, signer first.
func embeddedCertificates(sig *etree.Element) ([]*x509.Certificate, error) {
	keyInfo := dsChild(sig, "KeyInfo")
	if keyInfo == nil {
		return nil, fmt.Errorf("no KeyInfo element")
	}
	data := dsChild(keyInfo, "X509Data")
	if data == nil {
		return nil, fmt.Errorf("no X509Data element")
	}

	var certs []*x509.Certificate
	for _, child := range data.ChildElements() {
		if child.Tag != "X509Certificate" || child.NamespaceURI() != XMLDSigNamespace {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(child.Text()), ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no X509Certificate element")
	}
	return certs, nil
}
