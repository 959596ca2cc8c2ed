package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/services"
	"github.com/Nialit/ymx/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	spotify *services.SpotifyService
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, resolveCommand, playlistCommand, libraryCommand, authCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// spotifyService builds and authenticates the Spotify client once per
// process.
func (r *Runner) spotifyService(ctx context.Context) (*services.SpotifyService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	svc, err := services.NewSpotifyService(r.config.Credentials.Spotify)
	if err != nil {
		return nil, err
	}
	if err := svc.Authenticate(ctx, r.config.Credentials.Spotify); err != nil {
		return nil, err
	}

	r.spotify = svc
	return svc, nil
}

func (r *Runner) ledgerStore() (*repositories.LedgerStore, error) {
	return repositories.NewLedgerStore(r.config.Storage.DataDir)
}

func (r *Runner) playlistStore() (*repositories.PlaylistStore, error) {
	return repositories.NewPlaylistStore(r.config.Storage.DataDir)
}

// libraryCache opens the SQLite mirror. The caller owns the close.
func (r *Runner) libraryCache() (*repositories.LibraryCache, func(), error) {
	db, err := shared.NewDatabase(r.config.Storage.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	cache, err := repositories.NewLibraryCache(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return cache, func() { db.Close() }, nil
}

func (r *Runner) searchLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(r.config.Matching.SearchPerSec), 1)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
