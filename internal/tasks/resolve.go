package tasks

import (
	"context"
	"fmt"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
	"github.com/Nialit/ymx/internal/services"
	"github.com/charmbracelet/log"
)

// Decision is one operator verdict on a rejected record.
type Decision int

const (
	// DecisionSkip leaves the record rejected for a later session.
	DecisionSkip Decision = iota
	// DecisionSelect accepts one of the stored candidates.
	DecisionSelect
	// DecisionNoMatch marks the record as permanently unmatched; it will
	// not be offered again.
	DecisionNoMatch
	// DecisionQuit ends the session; earlier decisions are already applied.
	DecisionQuit
)

// resolvedNoMatch marks records the operator rejected for good.
const resolvedNoMatch = "resolved_no_match"

// Choice pairs a decision with the selected candidate index.
type Choice struct {
	Decision  Decision
	Candidate int
}

// DecisionSource supplies operator verdicts for rejected records, one at a
// time. The CLI implements it with an interactive picker; tests script it.
type DecisionSource interface {
	Decide(ctx context.Context, record models.MatchRecord) (Choice, error)
}

// ResolveSummary is the outcome of one resolution session.
type ResolveSummary struct {
	Offered  int `json:"offered"`
	Accepted int `json:"accepted"`
	NoMatch  int `json:"no_match"`
	Skipped  int `json:"skipped"`
}

// Resolver walks rejected records that carry candidates and applies the
// operator's verdicts. Every verdict is persisted before the next record is
// offered, so killing a session mid-way loses at most the in-flight record.
type Resolver struct {
	writer services.LibraryWriter
	store  *repositories.LedgerStore
	source DecisionSource
	logger *log.Logger
}

// NewResolver wires a resolution session from its collaborators.
func NewResolver(writer services.LibraryWriter, store *repositories.LedgerStore, source DecisionSource, logger *log.Logger) *Resolver {
	return &Resolver{writer: writer, store: store, source: source, logger: logger}
}

// Run offers every rejected record with stored candidates to the decision
// source. Records already marked resolved_no_match are not offered again.
func (r *Resolver) Run(ctx context.Context, progress chan<- ProgressUpdate) (*ResolveSummary, error) {
	ledger := r.store.Load()
	summary := &ResolveSummary{}

	offerable := 0
	for _, rec := range ledger.Rejected {
		if len(rec.Candidates) > 0 && rec.Reason != resolvedNoMatch {
			offerable++
		}
	}

	step := 0
	i := 0
	for i < len(ledger.Rejected) {
		rec := ledger.Rejected[i]
		if len(rec.Candidates) == 0 || rec.Reason == resolvedNoMatch {
			i++
			continue
		}

		step++
		summary.Offered++
		sendProgress(progress, resolveUpdate(step, offerable, rec))

		choice, err := r.source.Decide(ctx, rec)
		if err != nil {
			return summary, err
		}

		switch choice.Decision {
		case DecisionSelect:
			if choice.Candidate < 0 || choice.Candidate >= len(rec.Candidates) {
				return summary, fmt.Errorf("candidate index %d out of range", choice.Candidate)
			}
			if err := r.accept(ctx, ledger, i, rec.Candidates[choice.Candidate]); err != nil {
				return summary, err
			}
			summary.Accepted++
			// The accepted record was removed; i now points at the next one.
		case DecisionNoMatch:
			ledger.Rejected[i].Reason = resolvedNoMatch
			ledger.Rejected[i].Candidates = nil
			if err := r.store.SaveRejected(ledger.Rejected); err != nil {
				return summary, err
			}
			summary.NoMatch++
			i++
		case DecisionQuit:
			summary.Skipped++
			r.logger.Info("resolution session complete", "accepted", summary.Accepted, "no_match", summary.NoMatch)
			return summary, nil
		default:
			summary.Skipped++
			i++
		}
	}

	r.logger.Info("resolution session complete", "accepted", summary.Accepted, "no_match", summary.NoMatch)
	return summary, nil
}

// accept applies one selected candidate through the same persist-pending
// then write then promote sequence the pipeline uses, one record at a time.
// Each step lands on disk before the next.
func (r *Resolver) accept(ctx context.Context, ledger *repositories.Ledger, idx int, c models.Candidate) error {
	rec := acceptCandidate(ledger.Rejected[idx], c)

	if err := r.store.SavePending([]models.MatchRecord{rec}); err != nil {
		return err
	}
	if err := r.writer.SaveTracks(ctx, []string{rec.TargetID}); err != nil {
		return err
	}

	ledger.Confirmed = append(ledger.Confirmed, rec)
	if err := r.store.SaveConfirmed(ledger.Confirmed); err != nil {
		return err
	}
	ledger.Rejected = append(ledger.Rejected[:idx], ledger.Rejected[idx+1:]...)
	if err := r.store.SaveRejected(ledger.Rejected); err != nil {
		return err
	}
	return r.store.ClearPending()
}

func acceptCandidate(rec models.MatchRecord, c models.Candidate) models.MatchRecord {
	return models.MatchRecord{
		SourceID:      rec.SourceID,
		SourceTitle:   rec.SourceTitle,
		SourceArtists: rec.SourceArtists,
		TargetID:      c.ID,
		TargetURI:     c.URI,
		TargetTitle:   c.Title,
		TargetArtists: c.Artists,
		TitleScore:    c.TitleScore,
		Provenance:    models.ProvenanceManual,
	}
}
