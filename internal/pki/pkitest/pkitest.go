// Package pkitest builds throwaway PKCS#12 bundles for tests.
package pkitest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// Bundle is an encoded PKCS#12 container and the material inside it.
type Bundle struct {
	PFX  []byte
	Leaf *x509.Certificate
	Key  *rsa.PrivateKey
	CA   *x509.Certificate
}

// NewRSABundle returns a bundle holding a self-signed RSA certificate.
func NewRSABundle(t testing.TB, passphrase string) *Bundle {
	t.Helper()

	key := newRSAKey(t)
	leaf := selfSigned(t, "credseal-test-issuer", key)

	pfx, err := pkcs12.Modern.Encode(key, leaf, nil, passphrase)
	require.NoError(t, err)

	return &Bundle{PFX: pfx, Leaf: leaf, Key: key}
}

// NewRSABundleWithCA returns a bundle whose leaf is issued by a CA that is
// included in the bundle.
func NewRSABundleWithCA(t testing.TB, passphrase string) *Bundle {
	t.Helper()

	caKey := newRSAKey(t)
	ca := selfSigned(t, "credseal-test-ca", caKey)

	key := newRSAKey(t)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "credseal-test-seal", Organization: []string{"credseal"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pfx, err := pkcs12.Modern.Encode(key, leaf, []*x509.Certificate{ca}, passphrase)
	require.NoError(t, err)

	return &Bundle{PFX: pfx, Leaf: leaf, Key: key, CA: ca}
}

// NewMismatchedBundle returns a bundle whose private key does not belong to its certificate.
func NewMismatchedBundle(t testing.TB, passphrase string) []byte {
	t.Helper()

	leaf := selfSigned(t, "credseal-test-issuer", newRSAKey(t))

	pfx, err := pkcs12.Modern.Encode(newRSAKey(t), leaf, nil, passphrase)
	require.NoError(t, err)

	return pfx
}

// NewECDSABundle returns a bundle holding an ECDSA key, which the signer rejects.
func NewECDSABundle(t testing.TB, passphrase string) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leaf := selfSigned(t, "credseal-test-ecdsa", key)

	pfx, err := pkcs12.Modern.Encode(key, leaf, nil, passphrase)
	require.NoError(t, err)

	return pfx
}

func newRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func selfSigned(t testing.TB, cn string, key crypto.Signer) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"credseal"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}
