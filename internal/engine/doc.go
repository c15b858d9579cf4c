// Package engine implements the chamber lifecycle engine.
//
// The engine owns every state transition of a chamber: creation, release
// (finalize, return, nullify, collect-expired, delayed retrieval), dispute
// (challenge, cancel-challenge, mediate), the splitting subsystems (fragment,
// merge) and fee adjustment. It also fronts the guardian control surface and
// the disclosure helpers so that every request goes through one writer.
//
// ARCHITECTURE:
//
// Single writer:
// One mutex serializes requests. Each request reads the host tick once and
// runs guard evaluation, the record write and the ledger transfer inside one
// store transaction. A failed guard or transfer rolls back everything.
//
// Guard table:
// Operations on existing chambers are admitted by one row of a declarative
// table (caller roles x source statuses x time window). Checks run in a fixed
// order: identifier range, existence, role, status, time, then the
// operation's own argument checks, then the transfer.
//
// Audit:
// Committed operations emit one sealed audit.Event. The store is always the
// first sink; extra sinks (logs, metrics, recorders) follow.
//
// CRITICAL PATTERNS:
//
// Whole-record writes:
// Transitions build the next record with the chamber.With* copy helpers and
// write every column. No partial updates.
//
// Integer arithmetic:
// floor(q * p / 100) uses a 128-bit intermediate. Mediation derives the
// beneficiary portion by subtraction so the legs always sum to q.
// Fragmentation floors each child independently and leaves the residual
// in custody.
//
// Logical time:
// All waits are tick comparisons. The engine never sleeps.
package engine
