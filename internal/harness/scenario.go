package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/custody/internal/engine"
)

// Scenario defines a conformance test scenario.
// A scenario seeds balances, drives the engine through a list of requests at
// fixed ticks, and asserts on the resulting audit trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides engine parameters on top of config.Default, using the
	// same keys as a YAML config file.
	Config map[string]any `yaml:"config,omitempty"`

	// Balances seeds the in-memory ledger.
	Balances map[string]uint64 `yaml:"balances,omitempty"`

	// Steps are the requests, executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state, balance
	Assertions []Assertion `yaml:"assertions"`

	// RequestIDPrefix sets the prefix of the deterministic request ids.
	// If empty, ids are "req-0001", "req-0002", ...
	RequestIDPrefix string `yaml:"request_id_prefix,omitempty"`
}

// Step is one request to the engine.
type Step struct {
	// Op is the operation name (e.g., "create-vault", "finalize").
	Op string `yaml:"op"`

	// Caller is the authenticated account making the request.
	Caller string `yaml:"caller"`

	// Tick moves the host clock before the request. Ticks never decrease;
	// an omitted tick keeps the current one.
	Tick *uint64 `yaml:"tick,omitempty"`

	// Args are the named operation arguments.
	Args map[string]any `yaml:"args"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the outcome of a step.
type Expect struct {
	// Code is the expected error code, or "OK" for success.
	Code string `yaml:"code"`

	// Reason, if set, must equal the error's reason.
	Reason string `yaml:"reason,omitempty"`

	// Fields is a subset match on the emitted event's fields (success only).
	Fields map[string]any `yaml:"fields,omitempty"`
}

// CodeOK marks a step expected to succeed.
const CodeOK = "OK"

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with the action and fields exists
	// - "trace_order": the actions appear in order
	// - "trace_count": the action appears exactly Count times
	// - "final_state": a store row has the expected values
	// - "balance": a ledger account holds Amount
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Fields are the expected event fields (trace_contains). Subset match.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Table is the store table (final_state): chambers or counters.
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state). All must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Account and Amount are the expected ledger balance (balance).
	Account string `yaml:"account,omitempty"`
	Amount  uint64 `yaml:"amount,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertBalance       = "balance"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	// KnownFields catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := make(map[string]bool)
	for _, op := range engine.Operations() {
		known[string(op)] = true
	}

	var tick uint64
	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if !known[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Caller == "" {
			return fmt.Errorf("steps[%d]: caller is required", i)
		}
		if step.Args == nil {
			return fmt.Errorf("steps[%d]: args is required (use empty map if no args)", i)
		}
		if step.Tick != nil {
			if *step.Tick < tick {
				return fmt.Errorf("steps[%d]: tick %d is before previous tick %d", i, *step.Tick, tick)
			}
			tick = *step.Tick
		}
		if step.Expect != nil && step.Expect.Code == "" {
			return fmt.Errorf("steps[%d].expect: code is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertBalance:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for balance", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
