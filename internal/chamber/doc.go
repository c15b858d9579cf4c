// Package chamber provides the record types shared by every other package.
//
// A Chamber is the single persisted entity of the custody engine: one escrow
// record tracking custodied value between an initiator and a beneficiary.
// This package holds types and pure helpers only; it imports nothing internal.
//
// Key design constraints:
//   - Quantities are uint64 in the smallest unit; no floats anywhere
//   - Ticks come from the host's logical clock, never wall-clock time
//   - Records are replaced whole (copy-with-one-field-changed), never patched
package chamber
