package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/credseal/internal/certsource"
)

// CertCmd loads the configured seal certificate and prints its details, which
// checks the bundle and passphrase without contacting a signing service.
type CertCmd struct {
	ConfigFlags

	Stdout io.Writer `kong:"-"`
}

func (c *CertCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := setupLogger(ctx, globals)

	cfg, err := c.Resolve("")
	if err != nil {
		return withHint(err)
	}

	material, err := certsource.Load(ctx, cfg.CertificateSource())
	if err != nil {
		return withHint(err)
	}

	cert, err := material.Validate()
	if err != nil {
		return withHint(err)
	}

	leaf := cert.Leaf()
	log.Debug().Str("fingerprint", cert.Fingerprint()).Msg("Certificate loaded")

	out := c.Stdout
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintf(out, "subject: %s\n", leaf.Subject)
	fmt.Fprintf(out, "issuer: %s\n", leaf.Issuer)
	fmt.Fprintf(out, "serial: %s\n", leaf.SerialNumber)
	fmt.Fprintf(out, "not before: %s\n", leaf.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "not after: %s\n", leaf.NotAfter.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "algorithm: %s\n", cert.Algorithm())
	fmt.Fprintf(out, "fingerprint: %s\n", cert.Fingerprint())
	fmt.Fprintf(out, "chain: %d\n", len(cert.EncodedChain()))

	if time.Now().After(leaf.NotAfter) {
		log.Warn().Time("not_after", leaf.NotAfter).Msg("Certificate has expired")
	}

	return nil
}
