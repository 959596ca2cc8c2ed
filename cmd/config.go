package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/Nialit/ymx/internal/services"
	"github.com/Nialit/ymx/internal/shared"
)

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage application configuration",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write an example config.toml to fill in",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"p"},
						Value:   "config.toml",
						Usage:   "Where to write the config file",
					},
				},
				Action: r.ConfigInit,
			},
		},
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Print the Spotify OAuth authorization URL",
		Action: r.AuthURL,
	}
}

// ConfigInit writes the embedded example config for the operator to edit.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.writePlain("Wrote %s. Fill in your Spotify credentials to get started.\n", path)
	return nil
}

// AuthURL prints the authorization URL the operator opens in a browser to
// obtain a refresh token. Needs only client credentials, not a token.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	svc, err := services.NewSpotifyService(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	state := uuid.NewString()
	r.writePlain("Open this URL in a browser to authorize:\n\n%s\n", svc.GetAuthURL(state))
	return nil
}
