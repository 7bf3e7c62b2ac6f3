// Package engine executes sync cycles that reconcile the vector index with
// the working tree.
//
// A cycle moves through a fixed sequence: acquire the repository lock
// (bounded wait, ErrLockTimeout on expiry), resolve the change set (full
// scan diff, or explicit candidate list from a hook or manual trigger),
// process removals, then re-index added and modified files on a bounded
// worker pool.
//
// Two ordering rules give the system its consistency guarantees:
//
//   - Per file, index writes complete before the fingerprint commits. A
//     crash in between leaves a stale fingerprint, which re-derives the same
//     work next cycle; duplicated upserts are absorbed by deterministic
//     chunk IDs.
//
//   - Failures are per-file. A file whose embed or index write fails keeps
//     its old fingerprint and is retried on a later cycle; the rest of the
//     cycle commits normally. Only lock timeout or context death fails a
//     cycle as a whole.
//
// The lock makes concurrent cycles impossible for one Engine, and one
// Engine owns one repository.
package engine
