package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wolfeidau/credseal/internal/artifact"
)

type InspectCmd struct {
	Path  string `arg:"" help:"sealed credential, optionally zstd compressed" type:"existingfile"`
	Pages string `help:"directory to extract display page images into"`

	Stdout io.Writer `kong:"-"`
}

func (i *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	_, log := setupLogger(ctx, globals)

	data, err := artifact.Load(i.Path)
	if err != nil {
		return err
	}

	summary, err := artifact.Inspect(data)
	if err != nil {
		return withHint(err)
	}

	out := i.Stdout
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintf(out, "format: %s\n", summary.Format)
	fmt.Fprintf(out, "payload: %d bytes\n", len(summary.Payload))
	for n, sig := range summary.Signatures {
		fmt.Fprintf(out, "signature %d: alg=%s verified=%t\n", n+1, sig.Algorithm, sig.Verified)
		if sig.KeyID != "" {
			fmt.Fprintf(out, "  kid: %s\n", sig.KeyID)
		}
		if sig.Subject != "" {
			fmt.Fprintf(out, "  subject: %s\n", sig.Subject)
			fmt.Fprintf(out, "  fingerprint: %s\n", sig.Fingerprint)
		}
	}
	fmt.Fprintf(out, "pages: %d\n", len(summary.Pages))

	if i.Pages == "" || len(summary.Pages) == 0 {
		return nil
	}

	if err := os.MkdirAll(i.Pages, 0o755); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}

	for _, page := range summary.Pages {
		if len(page.Image) == 0 {
			continue
		}
		name := filepath.Join(i.Pages, fmt.Sprintf("page-%d%s", page.Number, pageExt(page.ContentType)))
		if err := os.WriteFile(name, page.Image, 0o644); err != nil {
			return fmt.Errorf("failed to write page %d: %w", page.Number, err)
		}
		log.Debug().Str("path", name).Int("bytes", len(page.Image)).Msg("Page extracted")
		fmt.Fprintf(out, "  %s\n", name)
	}

	return nil
}

func pageExt(contentType string) string {
	if contentType == "image/png" {
		return ".png"
	}
	return ".jpg"
}
