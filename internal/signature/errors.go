package signature

import "fmt"

// Error codes for sealing and verification
const (
	ErrCodeNotXML           = "NOT_XML"
	ErrCodeNoSignature      = "NO_SIGNATURE"
	ErrCodeAlreadySigned    = "ALREADY_SIGNED"
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
	ErrCodeInvalidKey       = "INVALID_KEY"
	ErrCodeCertExpired      = "CERT_EXPIRED"
	ErrCodeCertNotYetValid  = "CERT_NOT_YET_VALID"
	ErrCodeUntrustedSigner  = "UNTRUSTED_SIGNER"
	ErrCodeNoTrustedRoots   = "NO_TRUSTED_ROOTS"
)

// SignatureError represents sealing and verification errors
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	if e.Field != "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Code, e.Field, e.Message, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// Is matches another *SignatureError carrying the same code.
func (e *SignatureError) Is(target error) bool {
	t, ok := target.(*SignatureError)
	return ok && t.Code == e.Code
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrNotXML returns error when the input cannot be parsed as XML
func ErrNotXML(cause error) *SignatureError {
	return NewSignatureError(ErrCodeNotXML, "", "document is not well-formed XML", cause)
}

// ErrNoSignature returns error when no signature found in document
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrAlreadySigned returns error when sealing a document that carries a signature
func ErrAlreadySigned() *SignatureError {
	return NewSignatureError(ErrCodeAlreadySigned, "", "document already carries a signature", nil)
}

// ErrInvalidSignature returns error when signature validation fails
func ErrInvalidSignature(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidSignature, "signature", "signature validation failed", cause)
}

// ErrInvalidKey returns error when the signing key pair is unusable
func ErrInvalidKey(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidKey, "key", "signing key pair is unusable", cause)
}

// ErrCertExpired returns error when certificate has expired
func ErrCertExpired(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertExpired, "certificate", fmt.Sprintf("certificate expired: %s", subject), nil)
}

// ErrCertNotYetValid returns error when certificate is not yet valid
func ErrCertNotYetValid(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertNotYetValid, "certificate", fmt.Sprintf("certificate not yet valid: %s", subject), nil)
}

// ErrUntrustedSigner returns error when the signer does not chain to a trusted root
func ErrUntrustedSigner(subject string, cause error) *SignatureError {
	return NewSignatureError(ErrCodeUntrustedSigner, "certificate", fmt.Sprintf("signer not trusted: %s", subject), cause)
}

// ErrNoTrustedRoots returns error when verifying against an empty trust store
func ErrNoTrustedRoots() *SignatureError {
	return NewSignatureError(ErrCodeNoTrustedRoots, "", "trust store holds no certificates", nil)
}
