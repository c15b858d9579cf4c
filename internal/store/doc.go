// Package store provides SQLite-backed storage for chamber records.
//
// The store holds:
//   - Chambers: one row per chamber, replaced whole on every transition
//   - Counters: the monotonically increasing chamber id counter
//   - Events: the append-only audit log
//
// # Critical Patterns
//
// Single writer:
//   - One open connection; every engine operation runs inside Update
//   - Guard evaluation, the ledger transfer and the record write share one
//     transaction, so a failed transfer rolls the record change back
//
// Identity:
//   - Chamber ids come from the counter, starting at 1, never reused
//   - Records are never deleted; terminal statuses stay for audit
//
// Deterministic reads:
//   - Chambers ORDER BY id ASC, events ORDER BY seq ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
