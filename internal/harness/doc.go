// Package harness runs scripted chamber scenarios against a real engine.
//
// A scenario seeds ledger balances, optionally overrides configuration,
// dispatches a list of operations by name and then checks assertions
// against the audit trace, the store tables and the final balances.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: finalize_vault
//	description: "What this scenario validates"
//	config:
//	  max_fee_percentage: 20
//	balances:
//	  alice: 1000
//	steps:
//	  - op: create-vault
//	    caller: alice
//	    args: { beneficiary: bob, quantity: 400, duration: 10 }
//	  - op: finalize
//	    caller: bob
//	    tick: 3
//	    args: { chamber_id: 1 }
//	    expect:
//	      code: PERMISSION_DENIED
//	assertions:
//	  - type: trace_contains
//	    action: create-vault
//	    fields: { quantity: 400 }
//	  - type: final_state
//	    table: chambers
//	    where: { id: 1 }
//	    expect: { status: pending }
//	  - type: balance
//	    account: custody
//	    amount: 400
//
// A step without an expect clause must succeed (code OK).
//
// # Assertion Types
//
//   - trace_contains: a committed event for the action with matching fields
//   - trace_order: committed actions appear in the given order
//   - trace_count: an action committed exactly N times
//   - final_state: one row of chambers or counters holds the expected values
//   - balance: a ledger account holds the expected amount
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite store, a manual clock starting at
// tick 0 and sequential request ids, so the same scenario always produces
// the same trace. RunWithGolden compares that trace with a goldie snapshot.
package harness
