// package tasks implements the reconciliation operations: the resumable
// migration pipeline, the library snapshot fetch, interactive resolution of
// rejected records, and playlist sync.
//
// The core abstraction is Engine, which orchestrates a crash-safe run over
// the three-partition ledger. Operations emit progress updates via channels
// for non-blocking status reporting to the CLI layer.
package tasks
