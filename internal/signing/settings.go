package signing

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfeidau/credseal/internal/sealerr"
)

// Strategy selects how a document is sealed.
type Strategy string

const (
	// StrategyRemote runs the timestamp, data-to-sign, local sign, finalize
	// exchange against a DSS style signing service.
	StrategyRemote Strategy = "dss"
	// StrategyDelegated hands the document to a sealing authority in one call.
	StrategyDelegated Strategy = "edci"
)

// Strategies lists the accepted strategy names.
var Strategies = []Strategy{StrategyRemote, StrategyDelegated}

func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy maps a strategy name, case-insensitively, to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case StrategyRemote:
		return StrategyRemote, nil
	case StrategyDelegated:
		return StrategyDelegated, nil
	default:
		return "", sealerr.Configuration("parse strategy", fmt.Errorf("%w: %q", sealerr.ErrUnknownStrategy, name))
	}
}

// Settings are the credentials and endpoints needed for one Sign call.
type Settings struct {
	// Certificate is the PKCS#12 bundle holding the seal key and certificate.
	Certificate []byte
	Passphrase  string
	DSSURL      string
	EDCIURL     string
	// IssuerData is the JSON issuer object inserted into documents on the remote path.
	IssuerData []byte
}

// SettingsProvider supplies Settings. It is consulted on every Sign call so
// rotated certificates are picked up without a restart.
type SettingsProvider interface {
	Settings(ctx context.Context) (*Settings, error)
}

// SettingsFunc adapts a function to a SettingsProvider.
type SettingsFunc func(ctx context.Context) (*Settings, error)

func (f SettingsFunc) Settings(ctx context.Context) (*Settings, error) {
	return f(ctx)
}

// StaticSettings returns a provider that always yields s.
func StaticSettings(s Settings) SettingsProvider {
	return SettingsFunc(func(context.Context) (*Settings, error) {
		out := s
		return &out, nil
	})
}

func (s *Settings) validate(strategy Strategy) error {
	if s.Passphrase == "" {
		return sealerr.Configuration("settings", sealerr.ErrMissingPassphrase)
	}
	if len(s.Certificate) == 0 {
		return sealerr.Configuration("settings", sealerr.ErrMissingCertificate)
	}

	switch strategy {
	case StrategyRemote:
		if s.DSSURL == "" {
			return sealerr.Configuration("settings", fmt.Errorf("%w: dss url", sealerr.ErrMissingEndpoint))
		}
	case StrategyDelegated:
		if s.EDCIURL == "" {
			return sealerr.Configuration("settings", fmt.Errorf("%w: edci url", sealerr.ErrMissingEndpoint))
		}
	}

	return nil
}
