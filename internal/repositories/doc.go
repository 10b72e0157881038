// Package repositories implements SQLite persistence for run history.
//
// History is an audit log. The sync engine never consults it when deciding
// whether an item already exists at the destination; that question is always
// answered by the storage backend.
//
// Key Implementations:
//   - [RunRepository] : sync runs with soft deletes, plus the items each run abandoned
//   - [RunRecorder] : a per-run adapter the sync engine reports failures through
//
// Sequence numbers provide stable, human-readable ordering (run #12) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
