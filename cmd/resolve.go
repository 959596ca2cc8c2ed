package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/Nialit/ymx/internal/tasks"
	"github.com/Nialit/ymx/internal/ui"
)

func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "resolve",
		Usage:  "Interactively resolve rejected tracks that have stored candidates",
		Action: r.Resolve,
	}
}

// Resolve walks rejected records with candidates through the interactive
// picker and applies accepted matches.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	store, err := r.ledgerStore()
	if err != nil {
		return err
	}

	stats := tasks.ComputeStats(store.Load(), 0)
	if stats.Resolvable == 0 {
		r.writePlain("Nothing to resolve.\n")
		return nil
	}

	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	resolver := tasks.NewResolver(svc, store, ui.NewResolvePicker(), r.logger)

	r.writePlain("%d tracks to resolve.\n", stats.Resolvable)
	summary, runErr := resolver.Run(ctx, nil)
	if runErr != nil {
		return runErr
	}

	r.writePlainHeader("Resolution Session")
	r.writePlain("Offered:  %d\n", summary.Offered)
	r.writePlain("Accepted: %d\n", summary.Accepted)
	r.writePlain("No match: %d\n", summary.NoMatch)
	r.writePlain("Skipped:  %d\n", summary.Skipped)
	return nil
}
