package repositories

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Nialit/ymx/internal/models"
)

const (
	confirmedFile = "spotify_found.json"
	rejectedFile  = "spotify_not_found.json"
	pendingFile   = "spotify_pending.json"
)

// Ledger is the in-memory view of the reconciliation state: a partition of
// source track ids into confirmed (side effect applied), rejected (no
// match, possibly with stored candidates) and pending (matched but not yet
// applied). An id lives in at most one partition; pending drains to empty
// by the end of every successful run.
type Ledger struct {
	Confirmed []models.MatchRecord
	Rejected  []models.MatchRecord
	Pending   []models.MatchRecord
}

// DoneIDs returns the set of source ids in any partition.
func (l *Ledger) DoneIDs() map[string]bool {
	ids := make(map[string]bool, len(l.Confirmed)+len(l.Rejected)+len(l.Pending))
	for _, r := range l.Confirmed {
		ids[r.SourceID] = true
	}
	for _, r := range l.Rejected {
		ids[r.SourceID] = true
	}
	for _, r := range l.Pending {
		ids[r.SourceID] = true
	}
	return ids
}

// ConfirmedTargetIDs returns the set of target ids with applied side
// effects, used as the early-stop hint when refetching the library.
func (l *Ledger) ConfirmedTargetIDs() map[string]bool {
	ids := make(map[string]bool, len(l.Confirmed))
	for _, r := range l.Confirmed {
		if r.TargetID != "" {
			ids[r.TargetID] = true
		}
	}
	return ids
}

// ConfirmedBySource indexes confirmed records by source id.
func (l *Ledger) ConfirmedBySource() map[string]models.MatchRecord {
	byID := make(map[string]models.MatchRecord, len(l.Confirmed))
	for _, r := range l.Confirmed {
		byID[r.SourceID] = r
	}
	return byID
}

// DropRejected removes the rejected records whose source ids are in the
// given set, returning how many were removed.
func (l *Ledger) DropRejected(ids map[string]bool) int {
	kept := l.Rejected[:0]
	removed := 0
	for _, r := range l.Rejected {
		if ids[r.SourceID] {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.Rejected = kept
	return removed
}

// DropPending removes the pending records whose source ids are in the given
// set, returning how many were removed.
func (l *Ledger) DropPending(ids map[string]bool) int {
	kept := l.Pending[:0]
	removed := 0
	for _, r := range l.Pending {
		if ids[r.SourceID] {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.Pending = kept
	return removed
}

// LedgerStore persists the three ledger partitions as JSON files under a
// data directory.
type LedgerStore struct {
	dir string
}

// NewLedgerStore creates the data directory if needed and returns a store
// rooted there.
func NewLedgerStore(dir string) (*LedgerStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &LedgerStore{dir: dir}, nil
}

// Load reads all three partitions. Missing or malformed files read as empty
// partitions, never an error: a fresh data directory is a valid empty
// ledger.
func (s *LedgerStore) Load() *Ledger {
	return &Ledger{
		Confirmed: readRecords(filepath.Join(s.dir, confirmedFile)),
		Rejected:  readRecords(filepath.Join(s.dir, rejectedFile)),
		Pending:   readRecords(filepath.Join(s.dir, pendingFile)),
	}
}

// SaveConfirmed persists the confirmed partition.
func (s *LedgerStore) SaveConfirmed(records []models.MatchRecord) error {
	return writeJSON(s.dir, filepath.Join(s.dir, confirmedFile), emptySlice(records))
}

// SaveRejected persists the rejected partition.
func (s *LedgerStore) SaveRejected(records []models.MatchRecord) error {
	return writeJSON(s.dir, filepath.Join(s.dir, rejectedFile), emptySlice(records))
}

// SavePending persists the pending partition. The pipeline calls this
// BEFORE attempting the bulk side effect so a crash mid-apply still has the
// batch on disk.
func (s *LedgerStore) SavePending(records []models.MatchRecord) error {
	return writeJSON(s.dir, filepath.Join(s.dir, pendingFile), emptySlice(records))
}

// ClearPending removes the pending file after a successful drain.
func (s *LedgerStore) ClearPending() error {
	err := os.Remove(filepath.Join(s.dir, pendingFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear pending file: %w", err)
	}
	return nil
}

func readRecords(path string) []models.MatchRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var records []models.MatchRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}
	return records
}

// writeJSON writes v atomically: marshal, write to a temp file in the same
// directory, then rename into place.
func writeJSON(dir, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(dir, ".ymx-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// emptySlice keeps persisted partitions as [] rather than null.
func emptySlice(records []models.MatchRecord) []models.MatchRecord {
	if records == nil {
		return []models.MatchRecord{}
	}
	return records
}
