package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/credseal/internal/config"
	"github.com/wolfeidau/credseal/internal/logger"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"github.com/wolfeidau/credseal/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
}

// ConfigFlags are shared by commands that need signing configuration. Flags and
// environment variables override values from the config file.
type ConfigFlags struct {
	Config string `help:"YAML config file path" env:"CREDSEAL_CONFIG"`

	DSSURL  string `name:"dss-url" help:"DSS signing service base URL" env:"CREDSEAL_DSS_URL"`
	EDCIURL string `name:"edci-url" help:"EDCI sealing authority base URL" env:"CREDSEAL_EDCI_URL"`

	Certificate    string `help:"path to the PKCS#12 seal certificate" env:"CREDSEAL_CERTIFICATE"`
	Passphrase     string `help:"seal certificate passphrase" env:"CREDSEAL_PASSPHRASE"`
	PassphraseFile string `help:"file holding the seal certificate passphrase" env:"CREDSEAL_PASSPHRASE_FILE"`
	CertificateSSM string `name:"certificate-ssm" help:"SSM parameter holding the base64 encoded PKCS#12 bundle" env:"CREDSEAL_CERTIFICATE_SSM"`
	PassphraseSSM  string `name:"passphrase-ssm" help:"SSM parameter holding the certificate passphrase" env:"CREDSEAL_PASSPHRASE_SSM"`

	IssuerData string `help:"issuer JSON object inserted into documents" env:"CREDSEAL_ISSUER_DATA"`
	IssuerFile string `help:"file holding the issuer JSON object" env:"CREDSEAL_ISSUER_FILE"`

	CACert  string        `name:"ca-cert" help:"PEM bundle trusted for signing service TLS in addition to system roots" env:"CREDSEAL_CA_CERT"`
	Timeout time.Duration `help:"per call timeout for signing services" env:"CREDSEAL_TIMEOUT"`
	Retries uint          `help:"maximum attempts after transport failures" env:"CREDSEAL_RETRIES"`
}

// Resolve loads the config file when given and applies flag overrides.
func (f *ConfigFlags) Resolve(strategy string) (*config.Config, error) {
	cfg := config.Default()
	if f.Config != "" {
		loaded, err := config.Load(f.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.Merge(config.Config{
		Strategy: strategy,
		DSSURL:   f.DSSURL,
		EDCIURL:  f.EDCIURL,
		Certificate: config.CertificateConfig{
			Path:                   f.Certificate,
			Passphrase:             f.Passphrase,
			PassphraseFile:         f.PassphraseFile,
			SSMParameter:           f.CertificateSSM,
			PassphraseSSMParameter: f.PassphraseSSM,
		},
		Issuer: config.IssuerConfig{
			Data: f.IssuerData,
			File: f.IssuerFile,
		},
		HTTP: config.HTTPConfig{
			Timeout:    f.Timeout,
			CACertFile: f.CACert,
		},
		Retry: config.RetryConfig{
			MaxAttempts: f.Retries,
		},
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withHint appends a remediation hint for classified errors.
func withHint(err error) error {
	if err == nil {
		return nil
	}
	hint := sealerr.Remediation(err)
	if hint == "" {
		return err
	}
	return fmt.Errorf("%w (%s)", err, hint)
}

// setupLogger returns a context carrying the command logger.
func setupLogger(ctx context.Context, globals *Globals) (context.Context, zerolog.Logger) {
	log := logger.Setup(globals.Debug)
	return log.WithContext(ctx), log
}

// setupTelemetry starts exporters when an OTLP endpoint is configured and returns
// the function flushing them.
func setupTelemetry(ctx context.Context, log zerolog.Logger, version string) func() {
	if !telemetry.Enabled() {
		return func() {}
	}

	shutdown, err := telemetry.InitTelemetry(ctx, "credseal", version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
