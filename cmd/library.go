package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/Nialit/ymx/internal/tasks"
)

func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Manage the local Spotify library snapshot",
		Commands: []*cli.Command{
			{
				Name:  "refresh",
				Usage: "Fetch the library snapshot into the local cache",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Refetch everything, ignoring the early-stop heuristic",
					},
				},
				Action: r.LibraryRefresh,
			},
			{
				Name:   "stats",
				Usage:  "Show snapshot cache size and age",
				Action: r.LibraryStats,
			},
			{
				Name:   "clear",
				Usage:  "Drop the snapshot cache, forcing the next run to refetch",
				Action: r.LibraryClear,
			},
		},
	}
}

// LibraryRefresh fetches the library snapshot into the SQLite mirror.
func (r *Runner) LibraryRefresh(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	store, err := r.ledgerStore()
	if err != nil {
		return err
	}
	cache, closeCache, err := r.libraryCache()
	if err != nil {
		return err
	}
	defer closeCache()

	snap := tasks.NewSnapshotter(svc, cache, r.logger, r.config.Matching.PageSize)
	snap.KnownIDs = store.Load().ConfirmedTargetIDs()
	snap.ForceFull = cmd.Bool("full")

	r.writePlain("Fetching library snapshot...\n")

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			r.writePlain("  %s\n", update.Message)
		}
	}()

	fetched, runErr := snap.Fetch(ctx, progressCh)
	close(progressCh)
	if runErr != nil {
		return runErr
	}

	count, err := cache.Count()
	if err != nil {
		return err
	}
	r.writePlain("Fetched %d tracks, cache holds %d.\n", len(fetched), count)
	return nil
}

// LibraryStats reports snapshot cache size and freshness.
func (r *Runner) LibraryStats(ctx context.Context, cmd *cli.Command) error {
	cache, closeCache, err := r.libraryCache()
	if err != nil {
		return err
	}
	defer closeCache()

	count, err := cache.Count()
	if err != nil {
		return err
	}
	fetched, err := cache.LastFetched()
	if err != nil {
		return err
	}

	r.writePlainHeader("Library Cache")
	r.writePlain("Tracks: %d\n", count)
	if fetched.IsZero() {
		r.writePlain("Last fetch: never\n")
	} else {
		r.writePlain("Last fetch: %s\n", fetched.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// LibraryClear drops every cached snapshot row.
func (r *Runner) LibraryClear(ctx context.Context, cmd *cli.Command) error {
	cache, closeCache, err := r.libraryCache()
	if err != nil {
		return err
	}
	defer closeCache()

	if err := cache.Clear(); err != nil {
		return err
	}
	r.writePlain("Library cache cleared.\n")
	return nil
}
