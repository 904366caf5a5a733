package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/credseal/cmd/credseal/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Sign    commands.SignCmd    `cmd:"" help:"Seal a credential document"`
		Inspect commands.InspectCmd `cmd:"" help:"Inspect a sealed credential"`
		Cert    commands.CertCmd    `cmd:"" help:"Show the configured seal certificate"`
		Debug   bool                `help:"Enable debug mode." env:"CREDSEAL_DEBUG"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("credseal"),
		kong.Description("Seal verifiable credentials through a remote signing service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
