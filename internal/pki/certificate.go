package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"software.sslmate.com/src/go-pkcs12"
)

// signPKCS1v15 is replaced in tests to simulate a faulty primitive.
var signPKCS1v15 = rsa.SignPKCS1v15

var _ Signer = (*Certificate)(nil)

// Certificate holds a signing certificate and its RSA private key decoded from a
// PKCS#12 bundle. It is created per signing operation and never cached.
type Certificate struct {
	leaf  *x509.Certificate
	key   *rsa.PrivateKey
	chain []*x509.Certificate
}

// LoadPKCS12 decodes a PKCS#12 container protected by passphrase.
func LoadPKCS12(data []byte, passphrase string) (*Certificate, error) {
	if len(data) == 0 {
		return nil, sealerr.Validation("load certificate", sealerr.ErrEmptyInput)
	}

	key, leaf, chain, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return nil, sealerr.Crypto("load certificate", fmt.Errorf("%w: %v", sealerr.ErrInvalidBundle, err))
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, sealerr.Crypto("load certificate", fmt.Errorf("%w: %T", sealerr.ErrUnsupportedKey, key))
	}

	if err := verifyCertKeyPair(leaf, rsaKey); err != nil {
		return nil, sealerr.Crypto("load certificate", err)
	}

	return &Certificate{
		leaf:  leaf,
		key:   rsaKey,
		chain: chain,
	}, nil
}

// Sign computes an RSA PKCS#1 v1.5 signature over the SHA-256 digest of data.
// The signature is verified against the certificate before it is returned; a
// mismatch is an integrity failure and the signature is discarded.
func (c *Certificate) Sign(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, sealerr.Validation("sign", sealerr.ErrEmptyInput)
	}

	digest := sha256.Sum256(data)
	signature, err := signPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, sealerr.Crypto("sign", fmt.Errorf("failed to sign data: %w", err))
	}

	if err := c.Verify(data, signature); err != nil {
		return nil, sealerr.Integrity("sign", fmt.Errorf("%w: %v", sealerr.ErrSignatureMismatch, err))
	}

	return signature, nil
}

// Verify checks signature over data against the certificate's public key.
func (c *Certificate) Verify(data, signature []byte) error {
	pub, ok := c.leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not RSA")
	}

	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
}

// Algorithm returns the signature algorithm tag used by Sign.
func (c *Certificate) Algorithm() string {
	return AlgorithmRSASHA256
}

// EncodedCertificate returns the DER-encoded signing certificate.
func (c *Certificate) EncodedCertificate() []byte {
	return c.leaf.Raw
}

// EncodedChain returns the DER-encoded CA certificates from the bundle, if any.
func (c *Certificate) EncodedChain() [][]byte {
	chain := make([][]byte, 0, len(c.chain))
	for _, cert := range c.chain {
		chain = append(chain, cert.Raw)
	}
	return chain
}

// Leaf returns the parsed signing certificate.
func (c *Certificate) Leaf() *x509.Certificate {
	return c.leaf
}

// Fingerprint returns the Base58-encoded SHA-256 of the certificate DER.
func (c *Certificate) Fingerprint() string {
	return Fingerprint(c.leaf)
}

// Fingerprint returns the Base58-encoded SHA-256 of cert's DER encoding.
func Fingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return base58.Encode(hash[:])
}

// verifyCertKeyPair checks that a certificate's public key matches a private key
func verifyCertKeyPair(cert *x509.Certificate, key *rsa.PrivateKey) error {
	certPubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate public key is not RSA", sealerr.ErrKeyMismatch)
	}

	if !key.PublicKey.Equal(certPubKey) {
		return sealerr.ErrKeyMismatch
	}

	return nil
}
