package pki

// AlgorithmRSASHA256 is the signature algorithm tag sent to the signing service.
const AlgorithmRSASHA256 = "RSA_SHA256"

// Signer produces signatures backed by an X.509 certificate.
// Certificate is the only implementation; the interface lets protocols be tested
// against a faulty signer.
type Signer interface {
	// Sign returns a signature over data. Implementations must verify the
	// signature against their certificate before returning it.
	Sign(data []byte) ([]byte, error)

	// Algorithm returns the signature algorithm tag, e.g. RSA_SHA256.
	Algorithm() string

	// EncodedCertificate returns the DER-encoded signing certificate.
	EncodedCertificate() []byte

	// EncodedChain returns the DER-encoded CA certificates bundled with the key.
	EncodedChain() [][]byte
}
