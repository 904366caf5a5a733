// Package config loads credseal configuration from a YAML file and resolves it
// into the settings needed to seal a document.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/tidwall/gjson"
	"github.com/wolfeidau/credseal/internal/certsource"
	"github.com/wolfeidau/credseal/internal/client"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"github.com/wolfeidau/credseal/internal/signing"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Strategy    string            `yaml:"strategy"`
	DSSURL      string            `yaml:"dssUrl"`
	EDCIURL     string            `yaml:"edciUrl"`
	Certificate CertificateConfig `yaml:"certificate"`
	Issuer      IssuerConfig      `yaml:"issuer"`
	HTTP        HTTPConfig        `yaml:"http"`
	Retry       RetryConfig       `yaml:"retry"`
}

type CertificateConfig struct {
	Path           string `yaml:"path"`
	Passphrase     string `yaml:"passphrase"`
	PassphraseFile string `yaml:"passphraseFile"`
	// SSM parameter names, used instead of local files when set
	SSMParameter           string `yaml:"ssmParameter"`
	PassphraseSSMParameter string `yaml:"passphraseSsmParameter"`
}

// IssuerConfig holds the issuer object inserted into documents, either inline
// JSON or a path to a JSON file.
type IssuerConfig struct {
	Data string `yaml:"data"`
	File string `yaml:"file"`
}

type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	CACertFile string        `yaml:"caCertFile"`
}

type RetryConfig struct {
	MaxAttempts     uint          `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	MaxElapsedTime  time.Duration `yaml:"maxElapsedTime"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	retry := client.DefaultRetryPolicy()
	return &Config{
		Strategy: signing.StrategyRemote.String(),
		HTTP: HTTPConfig{
			Timeout: client.DefaultConfig().Timeout,
		},
		Retry: RetryConfig{
			MaxAttempts:     retry.MaxTries,
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			MaxElapsedTime:  retry.MaxElapsedTime,
		},
	}
}

// Load reads the YAML file at path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sealerr.Configuration("load config", fmt.Errorf("failed to read config file: %w", err))
	}

	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, sealerr.Configuration("load config", fmt.Errorf("failed to parse YAML config: %w", err))
	}

	return cfg, nil
}

// Merge overrides c with every non-zero value in o.
func (c *Config) Merge(o Config) {
	setString(&c.Strategy, o.Strategy)
	setString(&c.DSSURL, o.DSSURL)
	setString(&c.EDCIURL, o.EDCIURL)

	setString(&c.Certificate.Path, o.Certificate.Path)
	setString(&c.Certificate.Passphrase, o.Certificate.Passphrase)
	setString(&c.Certificate.PassphraseFile, o.Certificate.PassphraseFile)
	setString(&c.Certificate.SSMParameter, o.Certificate.SSMParameter)
	setString(&c.Certificate.PassphraseSSMParameter, o.Certificate.PassphraseSSMParameter)

	// inline data and file are exclusive, the override replaces both
	if o.Issuer.Data != "" || o.Issuer.File != "" {
		c.Issuer = o.Issuer
	}

	setString(&c.HTTP.CACertFile, o.HTTP.CACertFile)
	if o.HTTP.Timeout > 0 {
		c.HTTP.Timeout = o.HTTP.Timeout
	}
	if o.Retry.MaxAttempts > 0 {
		c.Retry.MaxAttempts = o.Retry.MaxAttempts
	}
	if o.Retry.InitialInterval > 0 {
		c.Retry.InitialInterval = o.Retry.InitialInterval
	}
	if o.Retry.MaxInterval > 0 {
		c.Retry.MaxInterval = o.Retry.MaxInterval
	}
	if o.Retry.MaxElapsedTime > 0 {
		c.Retry.MaxElapsedTime = o.Retry.MaxElapsedTime
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the configuration without touching certificates or the network.
func (c *Config) Validate() error {
	if _, err := signing.ParseStrategy(c.Strategy); err != nil {
		return err
	}

	for name, raw := range map[string]string{"dssUrl": c.DSSURL, "edciUrl": c.EDCIURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return sealerr.Configuration("validate config", fmt.Errorf("%s is not an absolute url: %q", name, raw))
		}
	}

	if c.Issuer.Data != "" && c.Issuer.File != "" {
		return sealerr.Configuration("validate config", fmt.Errorf("%w: issuer data and issuer file are exclusive", sealerr.ErrInvalidIssuerData))
	}
	if c.Issuer.Data != "" && !gjson.Valid(c.Issuer.Data) {
		return sealerr.Configuration("validate config", sealerr.ErrInvalidIssuerData)
	}

	if c.HTTP.Timeout <= 0 {
		return sealerr.Configuration("validate config", errors.New("http timeout must be positive"))
	}
	if c.Retry.MaxAttempts == 0 {
		return sealerr.Configuration("validate config", errors.New("retry maxAttempts must be at least 1"))
	}
	if c.Retry.MaxInterval > 0 && c.Retry.MaxInterval < c.Retry.InitialInterval {
		return sealerr.Configuration("validate config", errors.New("retry maxInterval must not be below initialInterval"))
	}

	return nil
}

// ClientConfig returns the HTTP client configuration.
func (c *Config) ClientConfig(debug bool) client.Config {
	return client.Config{
		Timeout:    c.HTTP.Timeout,
		CACertFile: c.HTTP.CACertFile,
		Debug:      debug,
	}
}

// RetryPolicy returns the transport retry policy.
func (c *Config) RetryPolicy() client.RetryPolicy {
	return client.RetryPolicy{
		MaxTries:        c.Retry.MaxAttempts,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		MaxElapsedTime:  c.Retry.MaxElapsedTime,
	}
}

// CertificateSource returns the certificate loading configuration.
func (c *Config) CertificateSource() certsource.Config {
	return certsource.Config{
		BundlePath:     c.Certificate.Path,
		PassphrasePath: c.Certificate.PassphraseFile,
		Passphrase:     c.Certificate.Passphrase,
		BundleSSM:      c.Certificate.SSMParameter,
		PassphraseSSM:  c.Certificate.PassphraseSSMParameter,
	}
}

// Settings implements signing.SettingsProvider. Certificate material and the
// issuer file are read on every call.
func (c *Config) Settings(ctx context.Context) (*signing.Settings, error) {
	material, err := certsource.Load(ctx, c.CertificateSource())
	if err != nil {
		return nil, err
	}

	issuer, err := c.IssuerData()
	if err != nil {
		return nil, err
	}

	return &signing.Settings{
		Certificate: material.Bundle,
		Passphrase:  material.Passphrase,
		DSSURL:      c.DSSURL,
		EDCIURL:     c.EDCIURL,
		IssuerData:  issuer,
	}, nil
}

// IssuerData returns the configured issuer JSON, nil when none is configured.
func (c *Config) IssuerData() ([]byte, error) {
	switch {
	case c.Issuer.Data != "":
		return []byte(c.Issuer.Data), nil
	case c.Issuer.File != "":
		data, err := os.ReadFile(c.Issuer.File)
		if err != nil {
			return nil, sealerr.Configuration("load issuer", fmt.Errorf("%w: %v", sealerr.ErrInvalidIssuerData, err))
		}
		return data, nil
	default:
		return nil, nil
	}
}
