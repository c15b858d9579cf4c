package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/custody/internal/audit"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
//
// Event ids are left out on purpose: they are content hashes and would
// make every golden file change whenever a single field changes.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Balances     map[string]uint64
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because audit.MarshalCanonical only handles event field types.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"step":   event.Step,
			"op":     event.Op,
			"caller": event.Caller,
			"tick":   event.Tick,
		}
		if event.Committed() {
			m["seq"] = event.Seq
			m["request_id"] = event.RequestID
			fields := event.Fields
			if fields == nil {
				fields = audit.Fields{}
			}
			m["fields"] = fields
		} else {
			m["code"] = event.Code
			m["reason"] = event.Reason
		}
		steps[i] = m
	}

	balances := make(map[string]any, len(s.Balances))
	for k, v := range s.Balances {
		balances[k] = v
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"balances":      balances,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

// Snapshot returns the canonical JSON golden files hold for a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Balances:     result.Balances,
	}
	return audit.MarshalCanonical(snapshot.toCanonicalMap())
}
