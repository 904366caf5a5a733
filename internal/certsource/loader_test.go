package certsource

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/credseal/internal/pki/pkitest"
	"github.com/wolfeidau/credseal/internal/sealerr"
)

type fakeSSM map[string]string

func (f fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	value, ok := f[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(value)}}, nil
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadFromFiles(t *testing.T) {
	bundle := pkitest.NewRSABundle(t, "s3cret")
	bundlePath := writeFile(t, "seal.p12", bundle.PFX)

	tests := []struct {
		name           string
		cfg            Config
		wantPassphrase string
	}{
		{
			name:           "passphrase file with trailing newline",
			cfg:            Config{BundlePath: bundlePath, PassphrasePath: writeFile(t, "pass", []byte("s3cret\n"))},
			wantPassphrase: "s3cret",
		},
		{
			name:           "passphrase file with crlf",
			cfg:            Config{BundlePath: bundlePath, PassphrasePath: writeFile(t, "pass", []byte("s3cret\r\n"))},
			wantPassphrase: "s3cret",
		},
		{
			name:           "inline passphrase wins",
			cfg:            Config{BundlePath: bundlePath, Passphrase: "s3cret", PassphrasePath: "/does/not/exist"},
			wantPassphrase: "s3cret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(context.Background(), tt.cfg)
			require.NoError(t, err)
			require.Equal(t, bundle.PFX, m.Bundle)
			require.Equal(t, tt.wantPassphrase, m.Passphrase)

			cert, err := m.Validate()
			require.NoError(t, err)
			require.Equal(t, bundle.Leaf.Raw, cert.EncodedCertificate())
		})
	}
}

func TestLoadFromFilesErrors(t *testing.T) {
	_, err := Load(context.Background(), Config{BundlePath: filepath.Join(t.TempDir(), "missing.p12")})
	require.Equal(t, sealerr.KindConfiguration, sealerr.KindOf(err))

	_, err = Load(context.Background(), Config{PassphrasePath: filepath.Join(t.TempDir(), "missing")})
	require.Equal(t, sealerr.KindConfiguration, sealerr.KindOf(err))
}

func TestLoadWithClient(t *testing.T) {
	bundle := pkitest.NewRSABundle(t, "from-ssm")

	client := fakeSSM{
		"/credseal/seal/bundle":     base64.StdEncoding.EncodeToString(bundle.PFX),
		"/credseal/seal/passphrase": "from-ssm",
		"/credseal/seal/broken":     "%%% not base64",
	}

	t.Run("bundle and passphrase", func(t *testing.T) {
		m, err := LoadWithClient(context.Background(), Config{
			BundleSSM:     "/credseal/seal/bundle",
			PassphraseSSM: "/credseal/seal/passphrase",
		}, client)
		require.NoError(t, err)
		require.Equal(t, "from-ssm", m.Passphrase)

		_, err = m.Validate()
		require.NoError(t, err)
	})

	t.Run("missing parameter", func(t *testing.T) {
		_, err := LoadWithClient(context.Background(), Config{BundleSSM: "/credseal/other"}, client)
		require.Equal(t, sealerr.KindConfiguration, sealerr.KindOf(err))
		require.ErrorContains(t, err, "ParameterNotFound")
	})

	t.Run("bundle not base64", func(t *testing.T) {
		_, err := LoadWithClient(context.Background(), Config{BundleSSM: "/credseal/seal/broken"}, client)
		require.Equal(t, sealerr.KindConfiguration, sealerr.KindOf(err))
	})
}

func TestMaterialValidate(t *testing.T) {
	bundle := pkitest.NewRSABundle(t, "right")

	tests := []struct {
		name     string
		material Material
		wantErr  error
	}{
		{name: "no bundle", material: Material{Passphrase: "right"}, wantErr: sealerr.ErrMissingCertificate},
		{name: "no passphrase", material: Material{Bundle: bundle.PFX}, wantErr: sealerr.ErrMissingPassphrase},
		{name: "wrong passphrase", material: Material{Bundle: bundle.PFX, Passphrase: "wrong"}, wantErr: sealerr.ErrInvalidBundle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.material.Validate()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
