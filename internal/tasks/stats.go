package tasks

import (
	"sort"
	"strings"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/repositories"
)

// LedgerStats summarizes ledger partitions for status reporting.
type LedgerStats struct {
	Total        int            `json:"total"`
	Confirmed    int            `json:"confirmed"`
	Rejected     int            `json:"rejected"`
	Pending      int            `json:"pending"`
	Remaining    int            `json:"remaining"`
	ByProvenance map[string]int `json:"by_provenance"`
	ByReason     map[string]int `json:"by_reason"`
	Resolvable   int            `json:"resolvable"`

	// UnmatchedArtists are source artists that appear only on rejected
	// records, sorted. A good shortlist of what the catalog lacks.
	UnmatchedArtists []string `json:"unmatched_artists,omitempty"`
}

// ComputeStats breaks the ledger down by provenance and rejection reason.
// total is the source export size; remaining is what no partition covers.
func ComputeStats(ledger *repositories.Ledger, total int) *LedgerStats {
	stats := &LedgerStats{
		Total:        total,
		Confirmed:    len(ledger.Confirmed),
		Rejected:     len(ledger.Rejected),
		Pending:      len(ledger.Pending),
		ByProvenance: make(map[string]int),
		ByReason:     make(map[string]int),
	}

	matchedArtists := make(map[string]bool)
	for _, r := range ledger.Confirmed {
		stats.ByProvenance[string(r.Provenance)]++
		for _, a := range models.SplitArtists(r.SourceArtists) {
			matchedArtists[a] = true
		}
	}

	unmatched := make(map[string]bool)
	for _, r := range ledger.Rejected {
		// Mismatch reasons carry the best score; bucket on the code alone.
		code, _, _ := strings.Cut(r.Reason, " ")
		stats.ByReason[code]++
		if len(r.Candidates) > 0 && r.Reason != resolvedNoMatch {
			stats.Resolvable++
		}
		for _, a := range models.SplitArtists(r.SourceArtists) {
			if a != "" && !matchedArtists[a] {
				unmatched[a] = true
			}
		}
	}
	for a := range unmatched {
		stats.UnmatchedArtists = append(stats.UnmatchedArtists, a)
	}
	sort.Strings(stats.UnmatchedArtists)

	stats.Remaining = total - stats.Confirmed - stats.Rejected - stats.Pending
	if stats.Remaining < 0 {
		stats.Remaining = 0
	}
	return stats
}
