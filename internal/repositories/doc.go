// package repositories provides the durable state of a reconciliation run:
// the three-partition ledger (confirmed / rejected / pending), the playlist
// sync pool and mapping, the SQLite mirror of the last target-library
// snapshot, and the loaders for the source catalog export files.
//
// Every JSON write that represents a state transition is atomic: data is
// written to a temp file in the same directory and renamed into place, so a
// crash mid-write never leaves a partial file visible to the next run.
// Missing or malformed files read as empty state.
package repositories
