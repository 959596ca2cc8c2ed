package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/shared"
	"github.com/Nialit/ymx/internal/tasks"
)

// testModeLimit caps remote searches when --test is set.
const testModeLimit = 10

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile liked tracks against the Spotify library",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the reconciliation pipeline (resumable, safe to interrupt)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "likes",
						Usage: "Path to the likes export file (defaults to the configured path)",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Max remote searches this run, 0 for unlimited",
					},
					&cli.FloatFlag{
						Name:  "threshold",
						Usage: "Minimum similarity score for an automatic match",
					},
					&cli.BoolFlag{
						Name:  "force-prematch",
						Usage: "Refetch the full library snapshot, ignoring the early-stop heuristic",
					},
					&cli.BoolFlag{
						Name:  "cached",
						Usage: "Skip the snapshot fetch and prematch from the local cache only",
					},
					&cli.BoolFlag{
						Name:    "test",
						Aliases: []string{"t"},
						Usage:   "Trial run capped at 10 remote searches",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the run summary as JSON",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:   "stats",
				Usage:  "Show ledger partition counts and breakdowns",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Print stats as JSON"}},
				Action: r.SyncStats,
			},
			{
				Name:   "pending",
				Usage:  "Re-apply a pending batch left by a crashed or halted run",
				Action: r.SyncPending,
			},
		},
	}
}

// SyncRun executes one reconciliation pass over the likes export.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	likesPath := cmd.String("likes")
	if likesPath == "" {
		likesPath = r.config.Storage.LikesFile
	}

	tracks, err := repositories.LoadSourceTracks(likesPath)
	if err != nil {
		return err
	}

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

	threshold := cmd.Float("threshold")
	if threshold <= 0 {
		threshold = r.config.Matching.Threshold
	}

	limit := int(cmd.Int("limit"))
	if cmd.Bool("test") && (limit == 0 || limit > testModeLimit) {
		limit = testModeLimit
	}

	logger := shared.WithLogger(r.logger, "component", "sync")
	engine := tasks.NewEngine(svc, svc, svc, store, cache, r.searchLimiter(), logger, tasks.Options{
		Threshold:      threshold,
		BatchSize:      r.config.Matching.BatchSize,
		PageSize:       r.config.Matching.PageSize,
		Limit:          limit,
		CandidateLimit: r.config.Matching.CandidateStop,
		ForceFullFetch: cmd.Bool("force-prematch"),
		CachedOnly:     cmd.Bool("cached"),
	})

	r.logger.Info("starting reconciliation", "tracks", len(tracks), "threshold", threshold)
	r.writePlain("Reconciling %d liked tracks...\n\n", len(tracks))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.ResumePending, tasks.FetchSnapshot, tasks.PrematchLibrary:
				r.writePlain("• %s\n", update.Message)
			case tasks.SearchCatalog:
				r.writePlain("  %s\n", update.Message)
			case tasks.FlushBatch:
				r.writePlain("✓ %s\n", update.Message)
			}
		}
	}()

	summary, runErr := engine.Run(ctx, progressCh, tracks)
	close(progressCh)

	if cmd.Bool("json") {
		if err := r.writeJSON(summary, true); err != nil {
			return err
		}
		return runErr
	}

	r.writePlain("\n")
	r.writePlainHeader("Run " + summary.RunID)
	r.writePlain("Prematched: %d\n", summary.Prematched)
	r.writePlain("Searched:   %d\n", summary.Searched)
	r.writePlain("Matched:    %d\n", summary.Matched)
	r.writePlain("Rejected:   %d\n", summary.Rejected)
	r.writePlain("Skipped:    %d (already reconciled)\n", summary.Skipped)
	r.writePlain("Confirmed:  %d total\n", summary.Confirmed)
	if summary.Halted {
		r.writePlain("\nRun halted early; state is persisted, rerun to resume.\n")
	}

	return runErr
}

// SyncStats reports ledger partition counts against the likes export.
func (r *Runner) SyncStats(ctx context.Context, cmd *cli.Command) error {
	store, err := r.ledgerStore()
	if err != nil {
		return err
	}

	total := 0
	if tracks, err := repositories.LoadSourceTracks(r.config.Storage.LikesFile); err == nil {
		total = len(tracks)
	}

	stats := tasks.ComputeStats(store.Load(), total)

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlainHeader("Reconciliation Status")
	r.writePlain("Source tracks: %d\n", stats.Total)
	r.writePlain("Confirmed:     %d\n", stats.Confirmed)
	r.writePlain("Rejected:      %d (%d resolvable)\n", stats.Rejected, stats.Resolvable)
	r.writePlain("Pending:       %d\n", stats.Pending)
	r.writePlain("Remaining:     %d\n", stats.Remaining)

	if len(stats.ByProvenance) > 0 {
		r.writePlain("\nConfirmed by source:\n")
		for source, count := range stats.ByProvenance {
			r.writePlain("  %-20s %d\n", source, count)
		}
	}
	if len(stats.ByReason) > 0 {
		r.writePlain("\nRejected by reason:\n")
		for reason, count := range stats.ByReason {
			r.writePlain("  %-20s %d\n", reason, count)
		}
	}
	if len(stats.UnmatchedArtists) > 0 {
		r.writePlain("\nArtists never matched (%d):\n", len(stats.UnmatchedArtists))
		for _, artist := range stats.UnmatchedArtists {
			r.writePlain("  %s\n", artist)
		}
	}

	return nil
}

// SyncPending re-applies a pending batch without running the full pipeline.
func (r *Runner) SyncPending(ctx context.Context, cmd *cli.Command) error {
	store, err := r.ledgerStore()
	if err != nil {
		return err
	}

	ledger := store.Load()
	if len(ledger.Pending) == 0 {
		r.writePlain("No pending batch.\n")
		return nil
	}

	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	engine := tasks.NewEngine(svc, svc, svc, store, nil, nil, r.logger, tasks.Options{})

	r.writePlain("Re-applying %d pending tracks...\n", len(ledger.Pending))
	count, runErr := engine.FlushPending(ctx)
	if runErr != nil {
		return runErr
	}

	r.writePlain("Done. %d tracks confirmed.\n", count)
	return nil
}
