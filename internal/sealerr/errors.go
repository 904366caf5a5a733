package sealerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the remediation it needs.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindCrypto
	KindIntegrity
	KindService
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindCrypto:
		return "crypto"
	case KindIntegrity:
		return "integrity"
	case KindService:
		return "service"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Reasons carried inside a typed error.
var (
	// ErrEmptyInput is returned when a document or payload to sign is empty
	ErrEmptyInput = errors.New("empty input")
	// ErrMalformedJSON is returned when a document does not parse as JSON
	ErrMalformedJSON = errors.New("malformed JSON document")
	// ErrMissingStructure is returned when a document lacks required keys
	ErrMissingStructure = errors.New("document is missing required structure")
	// ErrInvalidBundle is returned when a PKCS#12 container cannot be decoded with the passphrase
	ErrInvalidBundle = errors.New("invalid PKCS#12 bundle")
	// ErrUnsupportedKey is returned when the bundle holds a non-RSA private key
	ErrUnsupportedKey = errors.New("unsupported private key type")
	// ErrKeyMismatch is returned when the private key does not belong to the certificate
	ErrKeyMismatch = errors.New("private key does not match certificate")
	// ErrSignatureMismatch is returned when a freshly produced signature fails verification
	ErrSignatureMismatch = errors.New("signature failed self-verification")
	// ErrInvalidIssuerData is returned when configured issuer metadata is not valid JSON
	ErrInvalidIssuerData = errors.New("invalid issuer data")
	// ErrUnknownStrategy is returned for an unrecognised signing strategy
	ErrUnknownStrategy = errors.New("unknown signing strategy")
	// ErrMissingPassphrase is returned when no certificate passphrase is configured
	ErrMissingPassphrase = errors.New("certificate passphrase not configured")
	// ErrMissingCertificate is returned when no certificate bundle is configured
	ErrMissingCertificate = errors.New("certificate not configured")
	// ErrMissingEndpoint is returned when the service URL for a strategy is not configured
	ErrMissingEndpoint = errors.New("service endpoint not configured")
)

// Error is a classified failure raised somewhere in the sealing chain.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServiceError is returned when a remote endpoint answers with anything but a usable 200.
type ServiceError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Reason     string
}

// maxBodyInMessage bounds how much of a response body ends up in Error().
const maxBodyInMessage = 512

func (e *ServiceError) Error() string {
	body := e.Body
	if len(body) > maxBodyInMessage {
		body = body[:maxBodyInMessage] + "..."
	}
	if e.Reason != "" {
		return fmt.Sprintf("service %s failed: HTTP %d: %s: %s", e.Endpoint, e.StatusCode, e.Reason, body)
	}
	return fmt.Sprintf("service %s failed: HTTP %d: %s", e.Endpoint, e.StatusCode, body)
}

func Configuration(op string, err error) error { return &Error{Kind: KindConfiguration, Op: op, Err: err} }
func Validation(op string, err error) error    { return &Error{Kind: KindValidation, Op: op, Err: err} }
func Crypto(op string, err error) error        { return &Error{Kind: KindCrypto, Op: op, Err: err} }
func Integrity(op string, err error) error     { return &Error{Kind: KindIntegrity, Op: op, Err: err} }
func Network(op string, err error) error       { return &Error{Kind: KindNetwork, Op: op, Err: err} }

// Service wraps a ServiceError so it classifies as KindService.
func Service(op string, svcErr *ServiceError) error {
	return &Error{Kind: KindService, Op: op, Err: svcErr}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		return KindService
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// Remediation returns a short hint for the user based on the error kind.
func Remediation(err error) string {
	switch KindOf(err) {
	case KindConfiguration:
		return "fix your configuration"
	case KindValidation:
		return "fix your input document"
	case KindCrypto, KindIntegrity:
		return "check the signing certificate and passphrase"
	case KindService, KindNetwork:
		return "the remote service is unavailable"
	default:
		return ""
	}
}
