// Package certsource loads the seal certificate bundle and its passphrase from
// local files or AWS SSM Parameter Store.
package certsource

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/wolfeidau/credseal/internal/pki"
	"github.com/wolfeidau/credseal/internal/sealerr"
)

// Material holds a PKCS#12 bundle and its passphrase in memory
type Material struct {
	Bundle     []byte
	Passphrase string
}

// Config for loading certificate material
type Config struct {
	// File paths (for local development)
	BundlePath     string
	PassphrasePath string
	// Passphrase given directly, takes precedence over PassphrasePath and PassphraseSSM.
	Passphrase string

	// SSM parameter names (for production). The bundle parameter holds the
	// base64 encoded PKCS#12 file as a SecureString.
	BundleSSM     string
	PassphraseSSM string
}

// ParameterGetter is the subset of the SSM client used to fetch parameters.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Load loads certificate material from either SSM or files
func Load(ctx context.Context, cfg Config) (*Material, error) {
	if cfg.BundleSSM != "" || cfg.PassphraseSSM != "" {
		awsConfig, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, sealerr.Configuration("load certificate", fmt.Errorf("failed to load AWS config: %w", err))
		}
		return LoadWithClient(ctx, cfg, ssm.NewFromConfig(awsConfig))
	}

	return LoadWithClient(ctx, cfg, nil)
}

// LoadWithClient loads certificate material, fetching SSM parameters through client.
// client may be nil when no SSM parameter is configured.
func LoadWithClient(ctx context.Context, cfg Config, client ParameterGetter) (*Material, error) {
	m := &Material{Passphrase: cfg.Passphrase}

	switch {
	case cfg.BundleSSM != "":
		encoded, err := getParameter(ctx, client, cfg.BundleSSM)
		if err != nil {
			return nil, sealerr.Configuration("load certificate", fmt.Errorf("failed to load bundle from SSM: %w", err))
		}
		bundle, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, sealerr.Configuration("load certificate", fmt.Errorf("bundle parameter %s is not base64: %w", cfg.BundleSSM, err))
		}
		m.Bundle = bundle
	case cfg.BundlePath != "":
		bundle, err := os.ReadFile(cfg.BundlePath)
		if err != nil {
			return nil, sealerr.Configuration("load certificate", fmt.Errorf("failed to read bundle: %w", err))
		}
		m.Bundle = bundle
	}

	if m.Passphrase != "" {
		return m, nil
	}

	switch {
	case cfg.PassphraseSSM != "":
		passphrase, err := getParameter(ctx, client, cfg.PassphraseSSM)
		if err != nil {
			return nil, sealerr.Configuration("load certificate", fmt.Errorf("failed to load passphrase from SSM: %w", err))
		}
		m.Passphrase = passphrase
	case cfg.PassphrasePath != "":
		passphrase, err := readPassphrase(cfg.PassphrasePath)
		if err != nil {
			return nil, err
		}
		m.Passphrase = passphrase
	}

	return m, nil
}

// readPassphrase reads a passphrase file, dropping one trailing line ending.
func readPassphrase(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", sealerr.Configuration("load certificate", fmt.Errorf("failed to read passphrase: %w", err))
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	return string(data), nil
}

// getParameter fetches a decrypted parameter from SSM
func getParameter(ctx context.Context, client ParameterGetter, name string) (string, error) {
	output, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *output.Parameter.Value, nil
}

// Validate checks that the bundle decodes with the passphrase and returns the certificate.
func (m *Material) Validate() (*pki.Certificate, error) {
	if len(m.Bundle) == 0 {
		return nil, sealerr.Configuration("validate certificate", sealerr.ErrMissingCertificate)
	}
	if m.Passphrase == "" {
		return nil, sealerr.Configuration("validate certificate", sealerr.ErrMissingPassphrase)
	}
	return pki.LoadPKCS12(m.Bundle, m.Passphrase)
}
