package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/credseal/internal/logger"
)

// Config holds common client configuration
type Config struct {
	Timeout time.Duration
	// CACertFile is an optional PEM bundle trusted in addition to the system roots,
	// for signing services behind a private CA.
	CACertFile string
	Debug      bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
		Debug:   false,
	}
}

// NewHTTPClient creates the HTTP client used to talk to signing services.
// Server certificates are always verified; there is no option to skip it.
func NewHTTPClient(config Config, log zerolog.Logger) (*http.Client, error) {
	tlsConfig, err := TLSConfig(config.CACertFile)
	if err != nil {
		return nil, err
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: NewRequestIDTransport(logger.NewTransport(base, log)),
	}, nil
}

// TLSConfig builds a client tls.Config trusting the system roots plus any
// certificates found in caCertFile.
func TLSConfig(caCertFile string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caCertFile == "" {
		return cfg, nil
	}

	caCert, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	cfg.RootCAs = pool

	return cfg, nil
}
