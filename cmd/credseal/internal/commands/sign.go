package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wolfeidau/credseal/internal/artifact"
	"github.com/wolfeidau/credseal/internal/client"
	"github.com/wolfeidau/credseal/internal/signing"
)

type SignCmd struct {
	ConfigFlags

	Strategy string `help:"signing strategy, dss or edci" env:"CREDSEAL_STRATEGY"`
	Input    string `arg:"" optional:"" help:"credential document to seal, stdin when empty or -"`
	Out      string `short:"o" help:"file or directory to write the sealed document to, stdout when empty"`
	Compress bool   `help:"zstd compress the written artifact"`

	Stdin  io.Reader `kong:"-"`
	Stdout io.Writer `kong:"-"`
}

func (s *SignCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := setupLogger(ctx, globals)

	if s.Compress && s.Out == "" {
		return fmt.Errorf("--compress requires --out")
	}

	cfg, err := s.Resolve(s.Strategy)
	if err != nil {
		return withHint(err)
	}

	flush := setupTelemetry(ctx, log, globals.Version)
	defer flush()

	strategy, err := signing.ParseStrategy(cfg.Strategy)
	if err != nil {
		return withHint(err)
	}

	doc, err := s.readInput()
	if err != nil {
		return err
	}

	httpClient, err := client.NewHTTPClient(cfg.ClientConfig(globals.Debug), log)
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}

	orchestrator := signing.New(cfg,
		signing.WithHTTPClient(httpClient),
		signing.WithRetry(cfg.RetryPolicy()),
	)

	sealed, err := orchestrator.Sign(ctx, doc, strategy)
	if err != nil {
		return withHint(err)
	}

	if s.Out == "" {
		return s.write(sealed)
	}

	path := s.Out
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, artifact.DefaultFileName)
	}

	path, err = artifact.Save(path, sealed, s.Compress)
	if err != nil {
		return err
	}

	log.Info().Str("path", path).Int("bytes", len(sealed)).Msg("Sealed document written")
	return nil
}

func (s *SignCmd) readInput() ([]byte, error) {
	if s.Input != "" && s.Input != "-" {
		data, err := os.ReadFile(s.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
		return data, nil
	}

	in := s.Stdin
	if in == nil {
		in = os.Stdin
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read document from stdin: %w", err)
	}
	return data, nil
}

func (s *SignCmd) write(sealed []byte) error {
	out := s.Stdout
	if out == nil {
		out = os.Stdout
	}
	_, err := out.Write(sealed)
	return err
}
