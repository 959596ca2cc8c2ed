package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/shared"
	"github.com/Nialit/ymx/internal/tasks"
	"github.com/Nialit/ymx/internal/ui"
)

func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Mirror source playlists onto Spotify",
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "Match playlist tracks, cross-like them, and mirror playlists add-only",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "playlists",
						Usage: "Path to the playlists export file (defaults to the configured path)",
					},
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Sync only the playlist with this exact name",
					},
					&cli.BoolFlag{
						Name:    "test",
						Aliases: []string{"t"},
						Usage:   "Trial run on the first playlist, capped at 10 searches",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the sync summary as JSON",
					},
				},
				Action: r.PlaylistSync,
			},
			{
				Name:  "resolve",
				Usage: "Interactively resolve unmatched pool tracks that have stored candidates",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "playlists",
						Usage: "Path to the playlists export file (defaults to the configured path)",
					},
				},
				Action: r.PlaylistResolve,
			},
			{
				Name:   "stats",
				Usage:  "Show match pool and mapping status",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Print stats as JSON"}},
				Action: r.PlaylistStats,
			},
		},
	}
}

// PlaylistSync runs the full playlist pass over the playlists export.
func (r *Runner) PlaylistSync(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("playlists")
	if path == "" {
		path = r.config.Storage.PlaylistsFile
	}

	playlists, err := repositories.LoadSourcePlaylists(path)
	if err != nil {
		return err
	}

	if filter := cmd.String("filter"); filter != "" {
		var selected []models.SourcePlaylist
		for _, pl := range playlists {
			if pl.Name == filter {
				selected = append(selected, pl)
			}
		}
		if len(selected) == 0 {
			return fmt.Errorf("%w: no playlist named %q", shared.ErrInvalidInput, filter)
		}
		playlists = selected
	}
	if cmd.Bool("test") && len(playlists) > 1 {
		playlists = playlists[:1]
	}

	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	ledger, err := r.ledgerStore()
	if err != nil {
		return err
	}
	store, err := r.playlistStore()
	if err != nil {
		return err
	}
	cache, closeCache, err := r.libraryCache()
	if err != nil {
		return err
	}
	defer closeCache()

	logger := shared.WithLogger(r.logger, "component", "playlists")
	engine := tasks.NewPlaylistEngine(svc, svc, svc, ledger, store, r.searchLimiter(), logger, r.config.Matching.Threshold)
	engine.Pager = svc
	engine.Cache = cache
	engine.PageSize = r.config.Matching.PageSize
	if cmd.Bool("test") {
		engine.SearchLimit = testModeLimit
	}

	r.logger.Info("starting playlist sync", "playlists", len(playlists))
	r.writePlain("Syncing %d playlists...\n\n", len(playlists))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.MatchPool:
				r.writePlain("  %s\n", update.Message)
			case tasks.CrossLike, tasks.SyncPlaylists:
				r.writePlain("✓ %s\n", update.Message)
			}
		}
	}()

	summary, runErr := engine.Sync(ctx, progressCh, playlists)
	close(progressCh)

	if cmd.Bool("json") {
		if err := r.writeJSON(summary, true); err != nil {
			return err
		}
		return runErr
	}

	r.writePlain("\n")
	r.writePlainHeader("Playlist Sync")
	r.writePlain("Playlists:     %d (%d created)\n", summary.Playlists, summary.NewPlaylists)
	r.writePlain("Pool:          %d tracks, %d matched\n", summary.PoolSize, summary.PoolMatched)
	r.writePlain("New searches:  %d\n", summary.NewSearches)
	r.writePlain("Cross-liked:   %d\n", summary.CrossLiked)
	r.writePlain("Tracks added:  %d\n", summary.TracksAdded)

	return runErr
}

// PlaylistResolve walks unmatched pool entries with candidates through the
// interactive picker. Accepted matches land in the pool; the next sync pass
// cross-likes and mirrors them.
func (r *Runner) PlaylistResolve(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("playlists")
	if path == "" {
		path = r.config.Storage.PlaylistsFile
	}

	playlists, err := repositories.LoadSourcePlaylists(path)
	if err != nil {
		return err
	}
	ledger, err := r.ledgerStore()
	if err != nil {
		return err
	}
	store, err := r.playlistStore()
	if err != nil {
		return err
	}

	engine := tasks.NewPlaylistEngine(nil, nil, nil, ledger, store, nil, r.logger, r.config.Matching.Threshold)

	summary, runErr := engine.ResolvePool(ctx, nil, playlists, ui.NewResolvePicker())
	if runErr != nil {
		return runErr
	}
	if summary.Offered == 0 {
		r.writePlain("Nothing to resolve.\n")
		return nil
	}

	r.writePlainHeader("Pool Resolution")
	r.writePlain("Offered:  %d\n", summary.Offered)
	r.writePlain("Accepted: %d\n", summary.Accepted)
	r.writePlain("No match: %d\n", summary.NoMatch)
	r.writePlain("Skipped:  %d\n", summary.Skipped)
	return nil
}

// PlaylistStats reports match pool coverage and per-playlist watermarks.
func (r *Runner) PlaylistStats(ctx context.Context, cmd *cli.Command) error {
	store, err := r.playlistStore()
	if err != nil {
		return err
	}

	pool := store.LoadPool()
	mapping := store.LoadMapping()

	matched := 0
	for _, entry := range pool {
		if entry.Matched() {
			matched++
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"pool_size":    len(pool),
			"pool_matched": matched,
			"playlists":    len(mapping),
		}, true)
	}

	r.writePlainHeader("Playlist Status")
	r.writePlain("Pool: %d tracks, %d matched\n", len(pool), matched)
	r.writePlain("Mapped playlists: %d\n", len(mapping))
	for name, m := range mapping {
		r.writePlain("  %-30s %s (%d synced)\n", name, m.TargetPlaylistID, len(m.SyncedTrackIDs))
	}
	return nil
}
